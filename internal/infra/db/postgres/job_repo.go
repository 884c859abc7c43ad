package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/db/codec"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, source_url, reference_image_url, status, progress, output_url, provider_request_id,
  batch_id, error_message, recovery_attempts, created_at, updated_at, completed_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j         model.Job
		status    string
		requestID *string
	)
	if err := row.Scan(&j.ID, &j.SourceURL, &j.ReferenceImageURL, &status, &j.Progress, &j.OutputURL, &requestID,
		&j.BatchID, &j.ErrorMessage, &j.RecoveryAttempts, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt); err != nil {
		return nil, notFound(err)
	}
	j.Status = model.JobStatus(status)
	j.ProviderRequestID = codec.Deref(requestID)
	return &j, nil
}

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, j *model.Job) error {
	const q = `INSERT INTO jobs (` + jobColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`
	_, err := execSQL(ctx, r.pool, tx, q,
		j.ID, j.SourceURL, j.ReferenceImageURL, string(j.Status), j.Progress, j.OutputURL, codec.NullString(j.ProviderRequestID),
		codec.NullPtr(j.BatchID), j.ErrorMessage, j.RecoveryAttempts, j.CreatedAt, j.UpdatedAt, j.CompletedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) FindByProviderRequestID(ctx context.Context, tx repository.Tx, requestID string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+jobColumns+` FROM jobs WHERE provider_request_id=$1 ORDER BY created_at DESC LIMIT 1;`, requestID)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) ListStuck(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Job, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+jobColumns+` FROM jobs WHERE status='processing' AND updated_at < $1 ORDER BY updated_at LIMIT $2;`,
		olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *jobRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	return guarded(ctx, r.pool, tx,
		`UPDATE jobs SET status='processing', progress='Starting', updated_at=now() WHERE id=$1 AND status='queued';`, id)
}

func (r *jobRepo) SetProviderRequest(ctx context.Context, tx repository.Tx, id, requestID, progress string) (bool, error) {
	const q = `UPDATE jobs SET provider_request_id=$2, progress=$3, updated_at=now()
WHERE id=$1 AND status='processing' AND provider_request_id IS NULL;`
	return guarded(ctx, r.pool, tx, q, id, requestID, progress)
}

func (r *jobRepo) ClaimProviderResult(ctx context.Context, tx repository.Tx, id, requestID string) (bool, error) {
	const q = `UPDATE jobs SET provider_request_id=NULL, updated_at=now()
WHERE id=$1 AND provider_request_id=$2 AND status='processing';`
	return guarded(ctx, r.pool, tx, q, id, requestID)
}

func (r *jobRepo) Complete(ctx context.Context, tx repository.Tx, id, outputURL string) (bool, error) {
	const q = `UPDATE jobs SET status='completed', output_url=$2, progress='Completed', completed_at=now(), updated_at=now()
WHERE id=$1 AND status NOT IN ('completed','failed');`
	return guarded(ctx, r.pool, tx, q, id, outputURL)
}

func (r *jobRepo) Fail(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	const q = `UPDATE jobs SET status='failed', error_message=$2, progress='Failed', updated_at=now()
WHERE id=$1 AND status NOT IN ('completed','failed');`
	return guarded(ctx, r.pool, tx, q, id, reason)
}

func (r *jobRepo) TouchRecovery(ctx context.Context, tx repository.Tx, id, progress string) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `UPDATE jobs SET progress=$2, recovery_attempts=recovery_attempts+1, updated_at=now()
WHERE id=$1 AND status='processing' RETURNING recovery_attempts;`, id, progress)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, notFound(err)
	}
	return n, nil
}

func (r *jobRepo) DetachBatch(ctx context.Context, tx repository.Tx, batchID string) error {
	_, err := execSQL(ctx, r.pool, tx, `UPDATE jobs SET batch_id=NULL WHERE batch_id=$1;`, batchID)
	return err
}
