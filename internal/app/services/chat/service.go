// Package chat manages per-project two-party conversations: room
// creation, message history, and live delivery to every subscriber on
// every instance.
//
// Live delivery is two-tier. A message is handed to this instance's
// subscribers directly, then published to the broker tagged with the
// instance's origin id. Each instance relays broker traffic for the
// rooms it has subscribers in and drops envelopes carrying its own
// origin, so no subscriber ever sees a message twice. Local delivery
// does not depend on the broker being reachable.
package chat

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexushub/marketplace/internal/app/domain/actor"
	"github.com/nexushub/marketplace/internal/app/domain/chat"
	"github.com/nexushub/marketplace/internal/app/domain/notification"
	"github.com/nexushub/marketplace/internal/app/services/notifications"
	"github.com/nexushub/marketplace/internal/app/storage"
	"github.com/nexushub/marketplace/internal/errors"
	"github.com/nexushub/marketplace/internal/logging"
	"github.com/nexushub/marketplace/internal/mailer"
	"github.com/nexushub/marketplace/internal/metrics"
	"github.com/nexushub/marketplace/internal/pubsub"
)

const sideEffectTimeout = 10 * time.Second

// envelope is the broker wire format for one chat message.
type envelope struct {
	Origin  string        `json:"origin"`
	Message *chat.Message `json:"message"`
}

func roomTopic(roomID string) string { return "chat.room." + roomID }

// Service owns rooms, history and live fan-out.
type Service struct {
	store    storage.ChatStore
	projects storage.ProjectCatalog
	users    storage.UserDirectory
	notifier *notifications.Service
	broker   pubsub.Broker
	mail     mailer.Mailer
	metrics  *metrics.Metrics
	log      *logging.Logger

	instanceID string
	registry   *registry

	relayMu sync.Mutex
	relays  map[string]*relay
}

// relay is one ref-counted broker subscription feeding a room's local
// subscribers. sub is nil when the broker was unavailable at open time.
type relay struct {
	refs int
	sub  pubsub.Subscription
}

// NewService wires the service. metrics may be nil.
func NewService(
	store storage.ChatStore,
	projects storage.ProjectCatalog,
	users storage.UserDirectory,
	notifier *notifications.Service,
	broker pubsub.Broker,
	mail mailer.Mailer,
	m *metrics.Metrics,
	log *logging.Logger,
) *Service {
	return &Service{
		store:      store,
		projects:   projects,
		users:      users,
		notifier:   notifier,
		broker:     broker,
		mail:       mail,
		metrics:    m,
		log:        log,
		instanceID: uuid.NewString(),
		registry:   newRegistry(),
		relays:     make(map[string]*relay),
	}
}

// GetOrCreateRoom returns the conversation between the caller and
// otherUserID about a project, creating it when absent. Concurrent
// callers converge on the same room regardless of participant order.
func (s *Service) GetOrCreateRoom(ctx context.Context, act actor.Actor, projectID, otherUserID string) (*chat.Room, error) {
	if otherUserID == "" || otherUserID == act.ID {
		return nil, errors.Validation("cannot open a chat with yourself")
	}

	proj, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("project not found")
		}
		return nil, errors.Internal("failed to load project", err)
	}

	if _, err := s.users.GetUser(ctx, otherUserID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("user not found")
		}
		return nil, errors.Internal("failed to load user", err)
	}

	room, err := s.store.GetOrCreateRoom(ctx, projectID, proj.Title, []string{act.ID, otherUserID})
	if err != nil {
		return nil, errors.Internal("failed to open chat room", err)
	}
	return room, nil
}

// ListRooms returns the caller's rooms ordered by most recent activity.
func (s *Service) ListRooms(ctx context.Context, act actor.Actor) ([]*chat.Room, error) {
	rooms, err := s.store.ListRoomsByParticipant(ctx, act.ID)
	if err != nil {
		return nil, errors.Internal("failed to list chat rooms", err)
	}
	if rooms == nil {
		rooms = []*chat.Room{}
	}
	return rooms, nil
}

// ListMessages returns one page of a room's history in chronological
// order. Pages count back from the newest message.
func (s *Service) ListMessages(ctx context.Context, act actor.Actor, roomID string, page, size int) ([]*chat.Message, error) {
	if _, err := s.memberRoom(ctx, act, roomID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, roomID, page, size)
	if err != nil {
		return nil, errors.Internal("failed to list messages", err)
	}
	if msgs == nil {
		msgs = []*chat.Message{}
	}
	// The store pages newest first; the page itself reads oldest to
	// newest.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SendMessage persists a message and fans it out to every live
// subscriber. Broker and email failures never fail the send.
func (s *Service) SendMessage(ctx context.Context, act actor.Actor, roomID, content string) (*chat.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.Validation("message content is required")
	}

	room, err := s.memberRoom(ctx, act, roomID)
	if err != nil {
		return nil, err
	}

	senderName := act.ID
	if sender, err := s.users.GetUser(ctx, act.ID); err == nil {
		senderName = sender.DisplayName()
	}

	msg := &chat.Message{
		RoomID:     roomID,
		SenderID:   act.ID,
		SenderName: senderName,
		Content:    content,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, errors.Internal("failed to store message", err)
	}
	if s.metrics != nil {
		s.metrics.RecordChatMessage()
	}

	s.registry.broadcast(roomID, msg)

	payload, err := json.Marshal(envelope{Origin: s.instanceID, Message: msg})
	if err == nil {
		err = s.broker.Publish(ctx, roomTopic(roomID), payload)
	}
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("room_id", roomID).
			Warn("failed to publish chat message to broker")
	}

	recipient := room.OtherParticipant(act.ID)
	s.asyncNotify(ctx, room, msg, recipient)
	return msg, nil
}

// Subscription is one live feed over a room, local and relayed traffic
// combined. Close releases the registration and the relay reference.
type Subscription struct {
	sink    *Sink
	release func()
	once    sync.Once
}

// C returns the message channel. It is closed after Close.
func (s *Subscription) C() <-chan *chat.Message { return s.sink.C() }

// Close tears the subscription down. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.release)
}

// Join opens a live subscription on a room for the caller.
func (s *Service) Join(ctx context.Context, act actor.Actor, roomID string) (*Subscription, error) {
	if _, err := s.memberRoom(ctx, act, roomID); err != nil {
		return nil, err
	}

	sink := s.registry.register(roomID)
	s.acquireRelay(roomID)
	if s.metrics != nil {
		s.metrics.LiveSessionOpened()
	}

	return &Subscription{
		sink: sink,
		release: func() {
			s.registry.unregister(roomID, sink)
			s.releaseRelay(roomID)
			if s.metrics != nil {
				s.metrics.LiveSessionClosed()
			}
		},
	}, nil
}

func (s *Service) memberRoom(ctx context.Context, act actor.Actor, roomID string) (*chat.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("chat room not found")
		}
		return nil, errors.Internal("failed to load chat room", err)
	}
	if !room.HasParticipant(act.ID) {
		return nil, errors.Unauthorized("you are not a participant of this chat room")
	}
	return room, nil
}

// acquireRelay ensures one broker subscription exists for the room while
// any local subscriber is attached.
func (s *Service) acquireRelay(roomID string) {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()

	if r, ok := s.relays[roomID]; ok {
		r.refs++
		return
	}

	r := &relay{refs: 1}
	sub, err := s.broker.Subscribe(context.Background(), roomTopic(roomID))
	if err != nil {
		// Local delivery still works; remote messages are missed until
		// the room is rejoined.
		s.log.WithError(err).WithField("room_id", roomID).
			Warn("failed to subscribe to broker, room is local-only")
	} else {
		r.sub = sub
		go s.pumpRelay(roomID, sub)
	}
	s.relays[roomID] = r
}

func (s *Service) releaseRelay(roomID string) {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()

	r, ok := s.relays[roomID]
	if !ok {
		return
	}
	r.refs--
	if r.refs > 0 {
		return
	}
	delete(s.relays, roomID)
	if r.sub != nil {
		_ = r.sub.Close()
	}
}

// pumpRelay re-broadcasts remote broker traffic to local subscribers.
// Envelopes carrying this instance's origin were already delivered
// locally and are dropped.
func (s *Service) pumpRelay(roomID string, sub pubsub.Subscription) {
	for payload := range sub.C() {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			s.log.WithError(err).WithField("room_id", roomID).Warn("dropping malformed chat envelope")
			continue
		}
		if env.Origin == s.instanceID || env.Message == nil {
			continue
		}
		s.registry.broadcast(roomID, env.Message)
	}
}

// asyncNotify records a chat notification for the recipient and sends
// the email digest, detached from the request.
func (s *Service) asyncNotify(ctx context.Context, room *chat.Room, msg *chat.Message, recipient string) {
	if recipient == "" {
		return
	}
	traceID := logging.GetTraceID(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorf("panic in chat notification task: %v", r)
			}
		}()
		bg, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if traceID != "" {
			bg = logging.WithTraceID(bg, traceID)
		}

		_, err := s.notifier.Notify(bg, recipient,
			"New message",
			fmt.Sprintf("%s sent you a message about %q", msg.SenderName, room.ProjectTitle),
			notification.TypeChat,
			"/chat/rooms/"+room.ID)
		if err != nil {
			s.log.WithError(err).Warn("failed to notify chat recipient")
		}

		user, err := s.users.GetUser(bg, recipient)
		if err != nil {
			s.log.WithError(err).Warn("failed to load chat recipient for email")
			return
		}
		subject, body := mailer.ChatMessageEmail(user.DisplayName(), msg.SenderName, room.ProjectTitle, chat.Preview(msg.Content))
		if err := s.mail.Send(bg, user.Email, subject, body); err != nil {
			s.log.WithError(err).Warn("failed to send chat email")
		}
	}()
}
