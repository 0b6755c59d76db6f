// Package pubsub abstracts the fan-out broker that carries chat traffic
// between instances. The in-process broker serves single-instance
// deployments and tests; the Redis broker serves multi-instance ones.
package pubsub

import (
	"context"
	"sync"
)

// subscriptionBuffer bounds how far a slow subscriber may lag before
// messages are dropped.
const subscriptionBuffer = 64

// Broker publishes payloads to topics and hands out subscriptions.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription is one live topic feed. C is closed after Close returns.
type Subscription interface {
	C() <-chan []byte
	Close() error
}

// MemoryBroker fans out within a single process.
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySubscription]struct{}
}

var _ Broker = (*MemoryBroker)(nil)

// NewMemoryBroker builds an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]map[*memorySubscription]struct{})}
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[topic] {
		select {
		case sub.ch <- payload:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := &memorySubscription{
		broker: b,
		topic:  topic,
		ch:     make(chan []byte, subscriptionBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*memorySubscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	return sub, nil
}

type memorySubscription struct {
	broker *MemoryBroker
	topic  string
	ch     chan []byte
	once   sync.Once
}

func (s *memorySubscription) C() <-chan []byte { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		if subs := b.topics[s.topic]; subs != nil {
			delete(subs, s)
			if len(subs) == 0 {
				delete(b.topics, s.topic)
			}
		}
		b.mu.Unlock()
		close(s.ch)
	})
	return nil
}
