package redis

import (
	"context"
	"time"

	"mediaflow/internal/domain/ports/adapter"
)

var _ adapter.Cooldown = (*Cooldown)(nil)

// Cooldown admits the first caller per key and window; the key expiring opens
// the next window.
type Cooldown struct {
	client RedisClient
}

func NewCooldown(client RedisClient) *Cooldown {
	return &Cooldown{client: client}
}

func (c *Cooldown) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	return c.client.SetNX(ctx, "cooldown:"+key, time.Now().UTC().Format(time.RFC3339), window)
}
