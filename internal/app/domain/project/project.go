// Package project carries the read-only project catalog record consumed by
// the marketplace core. The catalog itself is an external collaborator; the
// core only ever reads owner, status and title.
package project

import "time"

// Status is the lifecycle state of a project as reported by the catalog.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Project is a catalog record.
type Project struct {
	ID        string
	OwnerID   string
	Title     string
	Status    Status
	CreatedAt time.Time
}
