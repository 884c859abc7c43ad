package sqlite

import (
	"context"
	"database/sql"
	"time"

	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
)

var (
	_ repository.IdempotencyRepository = (*idempotencyRepo)(nil)
	_ repository.LockRepository        = (*lockRepo)(nil)
)

type idempotencyRepo struct {
	db *sql.DB
}

func NewIdempotencyRepo(db *sql.DB) *idempotencyRepo {
	return &idempotencyRepo{db: db}
}

func (r *idempotencyRepo) Begin(ctx context.Context, tx repository.Tx, key, scope string, ttl time.Duration) (*model.IdempotencyKey, bool, error) {
	at := time.Now().UTC()
	if _, err := execSQL(ctx, r.db, tx, `DELETE FROM idempotency_keys WHERE key=? AND expires_at < ?;`, key, ts(at)); err != nil {
		return nil, false, err
	}
	res, err := execSQL(ctx, r.db, tx, `INSERT INTO idempotency_keys (key, scope, status, created_at, expires_at)
VALUES (?,?,'processing',?,?) ON CONFLICT (key) DO NOTHING;`, key, scope, ts(at), ts(at.Add(ttl)))
	if err != nil {
		return nil, false, err
	}
	if n, err := affected(res); err != nil {
		return nil, false, err
	} else if n == 1 {
		return &model.IdempotencyKey{
			Key: key, Scope: scope, Status: model.IdempotencyProcessing, CreatedAt: at, ExpiresAt: at.Add(ttl),
		}, true, nil
	}

	row, err := pickRow(ctx, r.db, tx,
		`SELECT key, scope, status, response, created_at, expires_at FROM idempotency_keys WHERE key=?;`, key)
	if err != nil {
		return nil, false, err
	}
	var (
		rec                          model.IdempotencyKey
		status, createdAt, expiresAt string
		response                     []byte
	)
	if err := row.Scan(&rec.Key, &rec.Scope, &status, &response, &createdAt, &expiresAt); err != nil {
		return nil, false, notFound(err)
	}
	if rec.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, false, err
	}
	if rec.ExpiresAt, err = parseTS(expiresAt); err != nil {
		return nil, false, err
	}
	rec.Status = model.IdempotencyStatus(status)
	rec.Response = response
	return &rec, false, nil
}

func (r *idempotencyRepo) Complete(ctx context.Context, tx repository.Tx, key string, response []byte) error {
	return mustAffect(execSQL(ctx, r.db, tx,
		`UPDATE idempotency_keys SET status='completed', response=? WHERE key=?;`, nullJSON(response), key))
}

func (r *idempotencyRepo) Release(ctx context.Context, tx repository.Tx, key string) error {
	_, err := execSQL(ctx, r.db, tx, `DELETE FROM idempotency_keys WHERE key=? AND status='processing';`, key)
	return err
}

type lockRepo struct {
	db *sql.DB
}

func NewLockRepo(db *sql.DB) *lockRepo {
	return &lockRepo{db: db}
}

func (r *lockRepo) Acquire(ctx context.Context, tx repository.Tx, key, token string, ttl time.Duration) (bool, error) {
	at := time.Now().UTC()
	const q = `INSERT INTO post_locks (key, token, acquired_at, expires_at) VALUES (?,?,?,?)
ON CONFLICT (key) DO UPDATE SET token=excluded.token, acquired_at=excluded.acquired_at, expires_at=excluded.expires_at
WHERE post_locks.expires_at < excluded.acquired_at;`
	return guarded(ctx, r.db, tx, q, key, token, ts(at), ts(at.Add(ttl)))
}

func (r *lockRepo) Release(ctx context.Context, tx repository.Tx, key, token string) error {
	_, err := execSQL(ctx, r.db, tx, `DELETE FROM post_locks WHERE key=? AND token=?;`, key, token)
	return err
}
