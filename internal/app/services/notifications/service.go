// Package notifications manages durable per-user notifications and the
// fast unread counter that sits beside them.
//
// The durable record is the source of truth; the counter is a cached
// aggregate. The two writes are not transactional, so the counter can
// briefly disagree with the records after a crash between them.
package notifications

import (
	"context"
	stderrors "errors"

	"github.com/nexushub/marketplace/internal/app/domain/notification"
	"github.com/nexushub/marketplace/internal/app/storage"
	"github.com/nexushub/marketplace/internal/errors"
	"github.com/nexushub/marketplace/internal/logging"
	"github.com/nexushub/marketplace/internal/metrics"
)

// Service coordinates the notification store and the unread counter.
type Service struct {
	store   storage.NotificationStore
	counter storage.UnreadCounter
	metrics *metrics.Metrics
	log     *logging.Logger
}

// NewService wires the service. metrics may be nil.
func NewService(store storage.NotificationStore, counter storage.UnreadCounter, m *metrics.Metrics, log *logging.Logger) *Service {
	return &Service{store: store, counter: counter, metrics: m, log: log}
}

// Notify writes a durable notification and bumps the unread counter.
// A counter failure is logged but never fails the notification.
func (s *Service) Notify(ctx context.Context, userID, title, message string, typ notification.Type, link string) (*notification.Record, error) {
	rec := &notification.Record{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    typ,
		Link:    link,
	}
	if err := s.store.CreateNotification(ctx, rec); err != nil {
		return nil, errors.Internal("failed to create notification", err)
	}
	if s.metrics != nil {
		s.metrics.RecordNotification()
	}

	if err := s.counter.Incr(ctx, userID); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("notified_user", userID).
			Warn("failed to increment unread counter")
	}
	return rec, nil
}

// List returns a page of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, page, size int) ([]*notification.Record, error) {
	recs, err := s.store.ListNotifications(ctx, userID, unreadOnly, page, size)
	if err != nil {
		return nil, errors.Internal("failed to list notifications", err)
	}
	if recs == nil {
		recs = []*notification.Record{}
	}
	return recs, nil
}

// UnreadCount returns the cached unread count.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	n, err := s.counter.Get(ctx, userID)
	if err != nil {
		return 0, errors.Internal("failed to read unread counter", err)
	}
	return n, nil
}

// MarkRead flips one unread notification owned by the caller. Absent,
// foreign and already-read notifications are indistinguishable to the
// caller.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.store.MarkNotificationRead(ctx, id, userID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("notification not found")
		}
		return errors.Internal("failed to mark notification read", err)
	}

	if err := s.counter.Decr(ctx, userID); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to decrement unread counter")
	}
	return nil
}

// MarkAllRead flips every unread notification owned by the caller and
// resets the counter. Returns how many were flipped.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	count, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, errors.Internal("failed to mark notifications read", err)
	}

	if err := s.counter.Reset(ctx, userID); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to reset unread counter")
	}
	return count, nil
}
