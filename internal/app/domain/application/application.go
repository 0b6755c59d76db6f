// Package application defines the Application entity and its lifecycle
// state machine: a student's candidacy for a project, advancing along a
// fixed directed graph of statuses.
package application

import "time"

// Status is the lifecycle state of an application. The string tokens are
// part of the external contract and must be preserved verbatim.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAccepted          Status = "accepted"
	StatusRejected          Status = "rejected"
	StatusInProgress        Status = "in_progress"
	StatusSubmitted         Status = "submitted"
	StatusRevisionRequested Status = "revision_requested"
	StatusApproved          Status = "approved"
	StatusCompleted         Status = "completed"
)

// transitions is the adjacency of the status graph. Statuses absent from
// the map (rejected, completed) are terminal.
var transitions = map[Status][]Status{
	StatusPending:           {StatusAccepted, StatusRejected},
	StatusAccepted:          {StatusInProgress},
	StatusInProgress:        {StatusSubmitted},
	StatusSubmitted:         {StatusApproved, StatusRevisionRequested},
	StatusRevisionRequested: {StatusSubmitted},
	StatusApproved:          {StatusCompleted},
}

// ownerStatuses are the targets only the project owner or an admin may
// request; applicantStatuses the targets only the applicant may request.
var ownerStatuses = map[Status]bool{
	StatusAccepted:          true,
	StatusRejected:          true,
	StatusApproved:          true,
	StatusRevisionRequested: true,
	StatusCompleted:         true,
}

var applicantStatuses = map[Status]bool{
	StatusInProgress: true,
	StatusSubmitted:  true,
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusInProgress,
		StatusSubmitted, StatusRevisionRequested, StatusApproved, StatusCompleted:
		return true
	}
	return false
}

// AllowedTargets returns the set of statuses reachable from s in one
// transition. The returned slice is a copy; terminal statuses yield an
// empty (non-nil) slice.
func (s Status) AllowedTargets() []Status {
	targets := transitions[s]
	out := make([]Status, len(targets))
	copy(out, targets)
	return out
}

// CanTransitionTo reports whether target is directly reachable from s.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// RequiresOwner reports whether only the project owner or an admin may
// request a transition into s.
func (s Status) RequiresOwner() bool { return ownerStatuses[s] }

// RequiresApplicant reports whether only the applicant may request a
// transition into s.
func (s Status) RequiresApplicant() bool { return applicantStatuses[s] }

// Application is one student's candidacy for one project. At most one
// exists per (project, applicant) pair; it is never deleted.
type Application struct {
	ID             string `json:"id"`
	ProjectID      string `json:"project_id"`
	ApplicantID    string `json:"applicant_id"`
	CoverLetter    string `json:"cover_letter,omitempty"`
	Status         Status `json:"status"`
	SubmissionNote string `json:"submission_note,omitempty"`
	RevisionNote   string `json:"revision_note,omitempty"`
	// Version guards concurrent transitions on the same application.
	Version   int       `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
