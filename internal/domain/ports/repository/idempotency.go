package repository

import (
	"context"
	"time"

	"mediaflow/internal/domain/model"
)

type IdempotencyRepository interface {
	// Begin inserts a processing record. When a live record already exists it is
	// returned with created=false.
	Begin(ctx context.Context, tx Tx, key, scope string, ttl time.Duration) (rec *model.IdempotencyKey, created bool, err error)
	Complete(ctx context.Context, tx Tx, key string, response []byte) error
	Release(ctx context.Context, tx Tx, key string) error
}

// LockRepository stores expiring advisory locks.
type LockRepository interface {
	Acquire(ctx context.Context, tx Tx, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, tx Tx, key, token string) error
}
