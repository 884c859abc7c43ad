// Package lock provides Locker and Cooldown on top of the database lease
// table, for deployments that run without Redis.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/domain/ports/repository"
)

var (
	_ adapter.Locker   = (*StoreLocker)(nil)
	_ adapter.Cooldown = (*StoreCooldown)(nil)
)

type StoreLocker struct {
	repo repository.LockRepository
}

func NewStoreLocker(repo repository.LockRepository) *StoreLocker {
	return &StoreLocker{repo: repo}
}

func (l *StoreLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.repo.Acquire(ctx, repository.NoTX, key, token, ttl)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrLockHeld
	}
	return token, nil
}

func (l *StoreLocker) Unlock(ctx context.Context, key, token string) error {
	return l.repo.Release(ctx, repository.NoTX, key, token)
}

// StoreCooldown takes a lease for the whole window and never releases it.
type StoreCooldown struct {
	repo repository.LockRepository
}

func NewStoreCooldown(repo repository.LockRepository) *StoreCooldown {
	return &StoreCooldown{repo: repo}
}

func (c *StoreCooldown) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	return c.repo.Acquire(ctx, repository.NoTX, "cooldown:"+key, uuid.NewString(), window)
}
