// Package redis implements the unread counter on Redis so every instance
// sees the same per-user count.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"github.com/nexushub/marketplace/internal/app/storage"
)

// decrClamped decrements the key only while it is positive, so racing
// decrements can never push the count below zero.
var decrClamped = goredis.NewScript(`
local v = tonumber(redis.call('GET', KEYS[1]) or '0')
if v > 0 then
	return redis.call('DECR', KEYS[1])
end
return 0
`)

// Counter stores one integer key per user.
type Counter struct {
	client *goredis.Client
}

var _ storage.UnreadCounter = (*Counter)(nil)

// NewCounter wraps an existing client.
func NewCounter(client *goredis.Client) *Counter {
	return &Counter{client: client}
}

func key(userID string) string {
	return "notifications:unread:" + userID
}

func (c *Counter) Incr(ctx context.Context, userID string) error {
	if err := c.client.Incr(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("incr unread count: %w", err)
	}
	return nil
}

func (c *Counter) Decr(ctx context.Context, userID string) error {
	if err := decrClamped.Run(ctx, c.client, []string{key(userID)}).Err(); err != nil {
		return fmt.Errorf("decr unread count: %w", err)
	}
	return nil
}

func (c *Counter) Get(ctx context.Context, userID string) (int64, error) {
	n, err := c.client.Get(ctx, key(userID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get unread count: %w", err)
	}
	return n, nil
}

func (c *Counter) Reset(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("reset unread count: %w", err)
	}
	return nil
}
