package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nexushub/marketplace/internal/app/domain/application"
	"github.com/nexushub/marketplace/internal/app/domain/chat"
	"github.com/nexushub/marketplace/internal/app/domain/notification"
	"github.com/nexushub/marketplace/internal/app/storage"
)

func TestCreateApplicationDuplicate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first := &application.Application{ProjectID: "p1", ApplicantID: "u1", Status: application.StatusPending}
	if err := s.CreateApplication(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &application.Application{ProjectID: "p1", ApplicantID: "u1", Status: application.StatusPending}
	if err := s.CreateApplication(ctx, dup); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	other := &application.Application{ProjectID: "p1", ApplicantID: "u2", Status: application.StatusPending}
	if err := s.CreateApplication(ctx, other); err != nil {
		t.Fatalf("different applicant should create: %v", err)
	}
}

func TestTransitionApplicationStaleVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	app := &application.Application{ProjectID: "p1", ApplicantID: "u1", Status: application.StatusPending}
	if err := s.CreateApplication(ctx, app); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.TransitionApplication(ctx, app.ID, 1, application.StatusAccepted, nil, nil)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	// Replaying against the old version must fail.
	if _, err := s.TransitionApplication(ctx, app.ID, 1, application.StatusRejected, nil, nil); !errors.Is(err, storage.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestTransitionApplicationNotes(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	app := &application.Application{ProjectID: "p1", ApplicantID: "u1", Status: application.StatusInProgress}
	if err := s.CreateApplication(ctx, app); err != nil {
		t.Fatalf("create: %v", err)
	}

	note := "work done"
	got, err := s.TransitionApplication(ctx, app.ID, 1, application.StatusSubmitted, &note, nil)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.SubmissionNote != "work done" {
		t.Fatalf("submission note not stored: %q", got.SubmissionNote)
	}

	// A nil note must not clear the stored one.
	got, err = s.TransitionApplication(ctx, app.ID, 2, application.StatusRevisionRequested, nil, nil)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.SubmissionNote != "work done" {
		t.Fatalf("submission note lost: %q", got.SubmissionNote)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	rec := &notification.Record{UserID: "u1", Title: "t", Message: "m", Type: notification.TypeInfo}
	if err := s.CreateNotification(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.MarkNotificationRead(ctx, rec.ID, "other"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("foreign notification: expected ErrNotFound, got %v", err)
	}
	if err := s.MarkNotificationRead(ctx, rec.ID, "u1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := s.MarkNotificationRead(ctx, rec.ID, "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("already read: expected ErrNotFound, got %v", err)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := &notification.Record{UserID: "u1", Title: "t", Message: "m", Type: notification.TypeInfo}
		if err := s.CreateNotification(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	other := &notification.Record{UserID: "u2", Title: "t", Message: "m", Type: notification.TypeInfo}
	if err := s.CreateNotification(ctx, other); err != nil {
		t.Fatalf("create: %v", err)
	}

	count, err := s.MarkAllNotificationsRead(ctx, "u1")
	if err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 flipped, got %d", count)
	}

	unread, err := s.ListNotifications(ctx, "u1", true, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected no unread, got %d", len(unread))
	}
}

func TestGetOrCreateRoomConcurrent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Half the callers pass the pair reversed.
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			room, err := s.GetOrCreateRoom(ctx, "p1", "Title", []string{a, b})
			if err != nil {
				t.Errorf("get or create: %v", err)
				return
			}
			ids[i] = room.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("room identity not stable: %q vs %q", ids[i], ids[0])
		}
	}
}

func TestListMessagesNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	room, err := s.GetOrCreateRoom(ctx, "p1", "Title", []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("room: %v", err)
	}

	for _, content := range []string{"one", "two", "three"} {
		msg := &chat.Message{RoomID: room.ID, SenderID: "alice", Content: content}
		if err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.ListMessages(ctx, room.ID, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "three" || msgs[1].Content != "two" {
		t.Fatalf("unexpected page: %+v", msgs)
	}

	got, err := s.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.LastMessage != "three" {
		t.Fatalf("preview not updated: %q", got.LastMessage)
	}
}

func TestCounterClampsAtZero(t *testing.T) {
	c := NewCounter()
	ctx := context.Background()

	if err := c.Decr(ctx, "u1"); err != nil {
		t.Fatalf("decr: %v", err)
	}
	n, err := c.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}

	for i := 0; i < 3; i++ {
		if err := c.Incr(ctx, "u1"); err != nil {
			t.Fatalf("incr: %v", err)
		}
	}
	if err := c.Reset(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	n, _ = c.Get(ctx, "u1")
	if n != 0 {
		t.Fatalf("expected 0 after reset, got %d", n)
	}
}
