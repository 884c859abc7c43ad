package redis

import (
	"context"
	"encoding/json"
	"time"

	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/infra/metrics"
)

var _ adapter.BatchCache = (*BatchCache)(nil)

// BatchCache holds the batch status read model for a short TTL. Counter
// updates invalidate it.
type BatchCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewBatchCache(client RedisClient, ttl time.Duration) *BatchCache {
	return &BatchCache{client: client, ttl: ttl}
}

func batchKey(id string) string { return "batch:" + id + ":details" }

func (c *BatchCache) Get(ctx context.Context, id string) (*adapter.BatchDetails, bool) {
	val, err := c.client.Get(ctx, batchKey(id))
	if err != nil {
		metrics.ObserveCacheLookup("batch", false)
		return nil, false
	}
	var d adapter.BatchDetails
	if err := json.Unmarshal([]byte(val), &d); err != nil {
		metrics.ObserveCacheLookup("batch", false)
		return nil, false
	}
	metrics.ObserveCacheLookup("batch", true)
	return &d, true
}

func (c *BatchCache) Set(ctx context.Context, id string, d *adapter.BatchDetails) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, batchKey(id), data, c.ttl)
}

func (c *BatchCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, batchKey(id))
}
