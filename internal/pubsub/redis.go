package pubsub

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/go-redis/redis/v8"
)

// RedisBroker carries payloads over Redis pub/sub channels.
type RedisBroker struct {
	client *goredis.Client
}

var _ Broker = (*RedisBroker)(nil)

// NewRedisBroker wraps an existing client.
func NewRedisBroker(client *goredis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, topic)
	// Receive forces the SUBSCRIBE to complete before we report success.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &redisSubscription{ps: ps, ch: make(chan []byte, subscriptionBuffer)}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	ps   *goredis.PubSub
	ch   chan []byte
	once sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		select {
		case s.ch <- []byte(msg.Payload):
		default:
		}
	}
}

func (s *redisSubscription) C() <-chan []byte { return s.ch }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}
