package chat

import (
	"sync"

	"github.com/nexushub/marketplace/internal/app/domain/chat"
)

// sinkBuffer bounds how far a slow subscriber may lag before messages
// are dropped for it.
const sinkBuffer = 32

// Sink is one local subscriber's message feed.
type Sink struct {
	ch chan *chat.Message
}

// C returns the subscriber's channel. It is closed on Unregister.
func (s *Sink) C() <-chan *chat.Message { return s.ch }

// registry tracks the live local subscribers per room.
type registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Sink]struct{}
}

func newRegistry() *registry {
	return &registry{rooms: make(map[string]map[*Sink]struct{})}
}

func (r *registry) register(roomID string) *Sink {
	sink := &Sink{ch: make(chan *chat.Message, sinkBuffer)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[*Sink]struct{})
	}
	r.rooms[roomID][sink] = struct{}{}
	return sink
}

func (r *registry) unregister(roomID string, sink *Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sinks := r.rooms[roomID]
	if _, ok := sinks[sink]; !ok {
		return
	}
	delete(sinks, sink)
	if len(sinks) == 0 {
		delete(r.rooms, roomID)
	}
	close(sink.ch)
}

// broadcast delivers msg to every local subscriber of the room. Slow
// subscribers are skipped rather than blocking the sender.
func (r *registry) broadcast(roomID string, msg *chat.Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sink := range r.rooms[roomID] {
		select {
		case sink.ch <- msg:
		default:
		}
	}
}
