package pubsub

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBrokerFanOut(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	sub1, err := b.Subscribe(ctx, "rooms.r1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub2, err := b.Subscribe(ctx, "rooms.r1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	other, err := b.Subscribe(ctx, "rooms.r2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(ctx, "rooms.r1", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, sub := range []Subscription{sub1, sub2} {
		select {
		case got := <-sub.C():
			if string(got) != "hello" {
				t.Fatalf("unexpected payload %q", got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for payload")
		}
	}

	select {
	case got := <-other.C():
		t.Fatalf("cross-topic leak: %q", got)
	default:
	}
}

func TestMemoryBrokerCloseStopsDelivery(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "rooms.r1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Closing twice is harmless.
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if err := b.Publish(ctx, "rooms.r1", []byte("late")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, open := <-sub.C(); open {
		t.Fatal("channel should be closed")
	}
}

func TestMemoryBrokerDropsWhenSubscriberLags(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "rooms.r1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// Overflow the buffer without draining. Publish must not block.
	for i := 0; i < subscriptionBuffer*2; i++ {
		if err := b.Publish(ctx, "rooms.r1", []byte("m")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	drained := 0
	for {
		select {
		case <-sub.C():
			drained++
		default:
			if drained != subscriptionBuffer {
				t.Fatalf("expected %d buffered, got %d", subscriptionBuffer, drained)
			}
			return
		}
	}
}
