// Package notification defines the durable per-user notification record.
package notification

import "time"

// Type tags the kind of event a record describes.
type Type string

const (
	TypeInfo        Type = "info"
	TypeApplication Type = "application"
	TypeReview      Type = "review"
	TypeChat        Type = "chat"
)

// Record is one delivered event. Once IsRead flips to true it never
// reverts; records are never deleted.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	IsRead    bool      `json:"is_read"`
	Type      Type      `json:"notification_type"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
