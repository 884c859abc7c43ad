//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
)

func TestPostRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPostRepo(testPool)
	locks := NewLockRepo(testPool)
	keys := NewIdempotencyRepo(testPool)

	newPost := func() *model.Post {
		now := time.Now().UTC()
		return &model.Post{
			ID: ulid.Make().String(), JobID: "job-1", AccountID: "acc-1", Platform: model.PlatformTikTok,
			Status: model.PostStatusPending, CreatedAt: now, UpdatedAt: now,
		}
	}

	t.Run("should reject a second post for the same target", func(t *testing.T) {
		cleanup(t)
		if err := repo.Create(ctx, nil, newPost()); err != nil {
			t.Fatalf("first create failed: %v", err)
		}
		if err := repo.Create(ctx, nil, newPost()); err != domain.ErrAlreadyExists {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("should reclaim only failed posts without force", func(t *testing.T) {
		cleanup(t)
		p := newPost()
		_ = repo.Create(ctx, nil, p)
		p.Status = model.PostStatusPublished
		_ = repo.Update(ctx, nil, p)

		if ok, _ := repo.Reclaim(ctx, nil, p.ID, "c", "m", false); ok {
			t.Error("a published post must not be reclaimed without force")
		}
		if ok, _ := repo.Reclaim(ctx, nil, p.ID, "c", "m", true); !ok {
			t.Error("force should reclaim a published post")
		}
	})

	t.Run("should hold a lock until release", func(t *testing.T) {
		cleanup(t)
		if ok, _ := locks.Acquire(ctx, nil, "post:job-1", "a", time.Minute); !ok {
			t.Fatal("first acquire should win")
		}
		if ok, _ := locks.Acquire(ctx, nil, "post:job-1", "b", time.Minute); ok {
			t.Error("second acquire must lose while the lease is live")
		}
		_ = locks.Release(ctx, nil, "post:job-1", "a")
		if ok, _ := locks.Acquire(ctx, nil, "post:job-1", "b", time.Minute); !ok {
			t.Error("acquire after release should win")
		}
	})

	t.Run("should return the stored idempotency record", func(t *testing.T) {
		cleanup(t)
		_, created, err := keys.Begin(ctx, nil, "k1", "publish", time.Hour)
		if err != nil || !created {
			t.Fatalf("Begin = %v, %v", created, err)
		}
		if err := keys.Complete(ctx, nil, "k1", []byte(`{"ok":true}`)); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		rec, created, err := keys.Begin(ctx, nil, "k1", "publish", time.Hour)
		if err != nil || created {
			t.Fatalf("second Begin = %v, %v", created, err)
		}
		if rec.Status != model.IdempotencyCompleted {
			t.Errorf("expected completed record, got %s", rec.Status)
		}
	})
}
