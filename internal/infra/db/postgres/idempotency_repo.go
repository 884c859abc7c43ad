package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
)

var (
	_ repository.IdempotencyRepository = (*idempotencyRepo)(nil)
	_ repository.LockRepository        = (*lockRepo)(nil)
)

type idempotencyRepo struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepo(pool *pgxpool.Pool) *idempotencyRepo {
	return &idempotencyRepo{pool: pool}
}

func (r *idempotencyRepo) Begin(ctx context.Context, tx repository.Tx, key, scope string, ttl time.Duration) (*model.IdempotencyKey, bool, error) {
	now := time.Now().UTC()
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM idempotency_keys WHERE key=$1 AND expires_at < $2;`, key, now); err != nil {
		return nil, false, err
	}
	tag, err := execSQL(ctx, r.pool, tx, `INSERT INTO idempotency_keys (key, scope, status, created_at, expires_at)
VALUES ($1,$2,'processing',$3,$4) ON CONFLICT (key) DO NOTHING;`, key, scope, now, now.Add(ttl))
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 1 {
		return &model.IdempotencyKey{
			Key: key, Scope: scope, Status: model.IdempotencyProcessing, CreatedAt: now, ExpiresAt: now.Add(ttl),
		}, true, nil
	}

	row, err := pickRow(ctx, r.pool, tx,
		`SELECT key, scope, status, response, created_at, expires_at FROM idempotency_keys WHERE key=$1;`, key)
	if err != nil {
		return nil, false, err
	}
	var (
		rec    model.IdempotencyKey
		status string
	)
	if err := row.Scan(&rec.Key, &rec.Scope, &status, &rec.Response, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		return nil, false, notFound(err)
	}
	rec.Status = model.IdempotencyStatus(status)
	return &rec, false, nil
}

func (r *idempotencyRepo) Complete(ctx context.Context, tx repository.Tx, key string, response []byte) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE idempotency_keys SET status='completed', response=$2 WHERE key=$1;`, key, response)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *idempotencyRepo) Release(ctx context.Context, tx repository.Tx, key string) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM idempotency_keys WHERE key=$1 AND status='processing';`, key)
	return err
}

type lockRepo struct {
	pool *pgxpool.Pool
}

func NewLockRepo(pool *pgxpool.Pool) *lockRepo {
	return &lockRepo{pool: pool}
}

// Acquire takes the lock when it is free or the previous holder's lease expired.
func (r *lockRepo) Acquire(ctx context.Context, tx repository.Tx, key, token string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	const q = `INSERT INTO post_locks (key, token, acquired_at, expires_at) VALUES ($1,$2,$3,$4)
ON CONFLICT (key) DO UPDATE SET token=EXCLUDED.token, acquired_at=EXCLUDED.acquired_at, expires_at=EXCLUDED.expires_at
WHERE post_locks.expires_at < EXCLUDED.acquired_at;`
	return guarded(ctx, r.pool, tx, q, key, token, now, now.Add(ttl))
}

func (r *lockRepo) Release(ctx context.Context, tx repository.Tx, key, token string) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM post_locks WHERE key=$1 AND token=$2;`, key, token)
	return err
}
