package adapter

import (
	"context"
	"time"

	"mediaflow/internal/domain/model"
)

// MediaTransform applies a local synchronous transform. inputs[0] is the
// working video; further inputs are the extra files the config references, in
// config order. It returns the path of the output file.
type MediaTransform interface {
	Apply(ctx context.Context, kind model.StepKind, inputs []string, cfg model.StepConfig, outDir string) (string, error)
}

type ObjectStorage interface {
	Upload(ctx context.Context, data []byte, name, contentType string) (publicURL string, err error)
	Download(ctx context.Context, url string) ([]byte, error)
	SignedURL(ctx context.Context, publicURL string) (string, error)
	// Owns reports whether url points into this storage.
	Owns(url string) bool
}

// Locker is an expiring mutual-exclusion primitive. TryLock returns
// domain.ErrLockHeld when someone else holds key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Cooldown lets at most one caller through per window.
type Cooldown interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}
