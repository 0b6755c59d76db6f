// Package storage defines the persistence interfaces for the marketplace
// core and the sentinel errors implementations report.
package storage

import (
	"context"
	"errors"

	"github.com/nexushub/marketplace/internal/app/domain/actor"
	"github.com/nexushub/marketplace/internal/app/domain/application"
	"github.com/nexushub/marketplace/internal/app/domain/chat"
	"github.com/nexushub/marketplace/internal/app/domain/notification"
	"github.com/nexushub/marketplace/internal/app/domain/project"
)

var (
	// ErrNotFound reports an absent row, or one the caller may not touch.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrStale reports a version mismatch on a guarded update.
	ErrStale = errors.New("stale version")
)

// ApplicationStore persists project applications.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app *application.Application) error
	GetApplication(ctx context.Context, id string) (*application.Application, error)
	GetApplicationByProjectAndApplicant(ctx context.Context, projectID, applicantID string) (*application.Application, error)
	ListApplicationsByProject(ctx context.Context, projectID string) ([]*application.Application, error)
	ListApplicationsByApplicant(ctx context.Context, applicantID string) ([]*application.Application, error)

	// TransitionApplication moves an application to target if and only if
	// its stored version still equals version; ErrStale otherwise. A
	// non-nil submissionNote or revisionNote overwrites the stored note.
	TransitionApplication(ctx context.Context, id string, version int, target application.Status, submissionNote, revisionNote *string) (*application.Application, error)
}

// NotificationStore persists durable notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, rec *notification.Record) error

	// MarkNotificationRead flips a single unread notification owned by
	// userID. Absent, foreign and already-read rows all report
	// ErrNotFound.
	MarkNotificationRead(ctx context.Context, id, userID string) error

	// MarkAllNotificationsRead flips every unread notification owned by
	// userID and returns how many changed.
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)

	ListNotifications(ctx context.Context, userID string, unreadOnly bool, page, size int) ([]*notification.Record, error)
}

// UnreadCounter tracks the per-user unread notification count.
type UnreadCounter interface {
	Incr(ctx context.Context, userID string) error
	// Decr decrements the count, never going below zero.
	Decr(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (int64, error)
	Reset(ctx context.Context, userID string) error
}

// ChatStore persists chat rooms and messages.
type ChatStore interface {
	// GetOrCreateRoom returns the room identified by projectID plus the
	// normalized participant pair, creating it atomically when absent.
	GetOrCreateRoom(ctx context.Context, projectID, projectTitle string, participants []string) (*chat.Room, error)
	GetRoom(ctx context.Context, roomID string) (*chat.Room, error)
	ListRoomsByParticipant(ctx context.Context, userID string) ([]*chat.Room, error)

	// AppendMessage stores the message and updates the room's last
	// message preview and activity timestamp in one operation.
	AppendMessage(ctx context.Context, msg *chat.Message) error

	// ListMessages returns a page of room messages, newest first.
	ListMessages(ctx context.Context, roomID string, page, size int) ([]*chat.Message, error)
}

// ProjectCatalog looks up projects owned by the surrounding platform.
type ProjectCatalog interface {
	GetProject(ctx context.Context, id string) (*project.Project, error)
}

// UserDirectory looks up platform users for display names and email.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*actor.User, error)
}
