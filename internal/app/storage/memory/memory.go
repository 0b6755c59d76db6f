// Package memory provides in-memory implementations of the storage
// interfaces. Used for development and tests; every method is safe for
// concurrent use and returns clones so callers can't mutate shared state.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexushub/marketplace/internal/app/domain/actor"
	"github.com/nexushub/marketplace/internal/app/domain/application"
	"github.com/nexushub/marketplace/internal/app/domain/chat"
	"github.com/nexushub/marketplace/internal/app/domain/notification"
	"github.com/nexushub/marketplace/internal/app/domain/project"
	"github.com/nexushub/marketplace/internal/app/storage"
)

// Store holds everything behind a single lock. Simple and fast enough
// for its purpose.
type Store struct {
	mu sync.RWMutex

	applications map[string]*application.Application
	// applicationKeys maps projectID+"/"+applicantID to an application id
	// to enforce the one-application-per-pair rule.
	applicationKeys map[string]string

	notifications map[string]*notification.Record

	rooms map[string]*chat.Room
	// roomKeys maps projectID+"/"+participantKey to a room id.
	roomKeys map[string]string
	messages map[string][]*chat.Message

	projects map[string]*project.Project
	users    map[string]*actor.User
}

var (
	_ storage.ApplicationStore  = (*Store)(nil)
	_ storage.NotificationStore = (*Store)(nil)
	_ storage.ChatStore         = (*Store)(nil)
	_ storage.ProjectCatalog    = (*Store)(nil)
	_ storage.UserDirectory     = (*Store)(nil)
)

// NewStore builds an empty in-memory store.
func NewStore() *Store {
	return &Store{
		applications:    make(map[string]*application.Application),
		applicationKeys: make(map[string]string),
		notifications:   make(map[string]*notification.Record),
		rooms:           make(map[string]*chat.Room),
		roomKeys:        make(map[string]string),
		messages:        make(map[string][]*chat.Message),
		projects:        make(map[string]*project.Project),
		users:           make(map[string]*actor.User),
	}
}

// --- applications ---

func applicationKey(projectID, applicantID string) string {
	return projectID + "/" + applicantID
}

func (s *Store) CreateApplication(ctx context.Context, app *application.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := applicationKey(app.ProjectID, app.ApplicantID)
	if _, exists := s.applicationKeys[key]; exists {
		return storage.ErrConflict
	}

	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = app.CreatedAt
	if app.Version == 0 {
		app.Version = 1
	}

	clone := *app
	s.applications[app.ID] = &clone
	s.applicationKeys[key] = app.ID
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.applications[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *app
	return &clone, nil
}

func (s *Store) GetApplicationByProjectAndApplicant(ctx context.Context, projectID, applicantID string) (*application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.applicationKeys[applicationKey(projectID, applicantID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *s.applications[id]
	return &clone, nil
}

func (s *Store) ListApplicationsByProject(ctx context.Context, projectID string) ([]*application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*application.Application
	for _, app := range s.applications {
		if app.ProjectID == projectID {
			clone := *app
			out = append(out, &clone)
		}
	}
	sortApplications(out)
	return out, nil
}

func (s *Store) ListApplicationsByApplicant(ctx context.Context, applicantID string) ([]*application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*application.Application
	for _, app := range s.applications {
		if app.ApplicantID == applicantID {
			clone := *app
			out = append(out, &clone)
		}
	}
	sortApplications(out)
	return out, nil
}

func sortApplications(apps []*application.Application) {
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].ID < apps[j].ID
		}
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
}

func (s *Store) TransitionApplication(ctx context.Context, id string, version int, target application.Status, submissionNote, revisionNote *string) (*application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if app.Version != version {
		return nil, storage.ErrStale
	}

	app.Status = target
	if submissionNote != nil {
		app.SubmissionNote = *submissionNote
	}
	if revisionNote != nil {
		app.RevisionNote = *revisionNote
	}
	app.Version++
	app.UpdatedAt = time.Now().UTC()

	clone := *app
	return &clone, nil
}

// --- notifications ---

func (s *Store) CreateNotification(ctx context.Context, rec *notification.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	clone := *rec
	s.notifications[rec.ID] = &clone
	return nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.notifications[id]
	if !ok || rec.UserID != userID || rec.IsRead {
		return storage.ErrNotFound
	}
	rec.IsRead = true
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, rec := range s.notifications {
		if rec.UserID == userID && !rec.IsRead {
			rec.IsRead = true
			count++
		}
	}
	return count, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, page, size int) ([]*notification.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*notification.Record
	for _, rec := range s.notifications {
		if rec.UserID != userID {
			continue
		}
		if unreadOnly && rec.IsRead {
			continue
		}
		clone := *rec
		all = append(all, &clone)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return paginate(all, page, size), nil
}

// --- chat ---

func roomKey(projectID string, participants []string) string {
	return projectID + "/" + strings.Join(participants, ":")
}

func (s *Store) GetOrCreateRoom(ctx context.Context, projectID, projectTitle string, participants []string) (*chat.Room, error) {
	if len(participants) != 2 {
		return nil, storage.ErrConflict
	}
	pair := chat.NormalizePair(participants[0], participants[1])

	s.mu.Lock()
	defer s.mu.Unlock()

	key := roomKey(projectID, pair)
	if id, ok := s.roomKeys[key]; ok {
		return cloneRoom(s.rooms[id]), nil
	}

	room := &chat.Room{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		ProjectTitle: projectTitle,
		Participants: pair,
		CreatedAt:    time.Now().UTC(),
	}
	s.rooms[room.ID] = room
	s.roomKeys[key] = room.ID
	return cloneRoom(room), nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*chat.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRoom(room), nil
}

func (s *Store) ListRoomsByParticipant(ctx context.Context, userID string) ([]*chat.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*chat.Room
	for _, room := range s.rooms {
		if room.HasParticipant(userID) {
			out = append(out, cloneRoom(room))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lastActivity(out[i]).After(lastActivity(out[j]))
	})
	return out, nil
}

func lastActivity(r *chat.Room) time.Time {
	if !r.LastMessageAt.IsZero() {
		return r.LastMessageAt
	}
	return r.CreatedAt
}

func (s *Store) AppendMessage(ctx context.Context, msg *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[msg.RoomID]
	if !ok {
		return storage.ErrNotFound
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	clone := *msg
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], &clone)

	room.LastMessage = chat.Preview(msg.Content)
	room.LastMessageAt = msg.CreatedAt
	return nil
}

func (s *Store) ListMessages(ctx context.Context, roomID string, page, size int) ([]*chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, storage.ErrNotFound
	}

	msgs := s.messages[roomID]
	newest := make([]*chat.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		clone := *msgs[i]
		newest = append(newest, &clone)
	}
	return paginate(newest, page, size), nil
}

func cloneRoom(r *chat.Room) *chat.Room {
	clone := *r
	clone.Participants = append([]string(nil), r.Participants...)
	return &clone
}

// --- catalog and directory ---

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

// PutProject seeds a project. Test helper.
func (s *Store) PutProject(p *project.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *p
	s.projects[p.ID] = &clone
}

func (s *Store) GetUser(ctx context.Context, id string) (*actor.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

// PutUser seeds a user. Test helper.
func (s *Store) PutUser(u *actor.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *u
	s.users[u.ID] = &clone
}

func paginate[T any](items []T, page, size int) []T {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Counter is an in-memory unread counter.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int64
}

var _ storage.UnreadCounter = (*Counter)(nil)

// NewCounter builds an empty counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int64)}
}

func (c *Counter) Incr(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[userID]++
	return nil
}

func (c *Counter) Decr(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[userID] > 0 {
		c.counts[userID]--
	}
	return nil
}

func (c *Counter) Get(ctx context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[userID], nil
}

func (c *Counter) Reset(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, userID)
	return nil
}
