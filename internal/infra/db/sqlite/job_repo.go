package sqlite

import (
	"context"
	"database/sql"
	"time"

	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/db/codec"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *jobRepo {
	return &jobRepo{db: db}
}

const jobColumns = `id, source_url, reference_image_url, status, progress, output_url, provider_request_id,
  batch_id, error_message, recovery_attempts, created_at, updated_at, completed_at`

func scanJob(row scanner) (*model.Job, error) {
	var (
		j                            model.Job
		requestID, batchID, finished sql.NullString
		status, createdAt, updatedAt string
	)
	if err := row.Scan(&j.ID, &j.SourceURL, &j.ReferenceImageURL, &status, &j.Progress, &j.OutputURL, &requestID,
		&batchID, &j.ErrorMessage, &j.RecoveryAttempts, &createdAt, &updatedAt, &finished); err != nil {
		return nil, notFound(err)
	}
	var err error
	if j.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return nil, err
	}
	if j.CompletedAt, err = parseNullTS(finished); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	j.ProviderRequestID = requestID.String
	j.BatchID = nullable(batchID)
	return &j, nil
}

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, j *model.Job) error {
	const q = `INSERT INTO jobs (` + jobColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?);`
	_, err := execSQL(ctx, r.db, tx, q,
		j.ID, j.SourceURL, j.ReferenceImageURL, string(j.Status), j.Progress, j.OutputURL, codec.NullString(j.ProviderRequestID),
		codec.NullPtr(j.BatchID), j.ErrorMessage, j.RecoveryAttempts, ts(j.CreatedAt), ts(j.UpdatedAt), nullTS(j.CompletedAt))
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.db, tx, `SELECT `+jobColumns+` FROM jobs WHERE id=?;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) FindByProviderRequestID(ctx context.Context, tx repository.Tx, requestID string) (*model.Job, error) {
	row, err := pickRow(ctx, r.db, tx,
		`SELECT `+jobColumns+` FROM jobs WHERE provider_request_id=? ORDER BY created_at DESC LIMIT 1;`, requestID)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) ListStuck(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Job, error) {
	rows, err := queryRows(ctx, r.db, tx,
		`SELECT `+jobColumns+` FROM jobs WHERE status='processing' AND updated_at < ? ORDER BY updated_at LIMIT ?;`,
		ts(olderThan), limit)
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
	return guarded(ctx, r.db, tx,
		`UPDATE jobs SET status='processing', progress='Starting', updated_at=? WHERE id=? AND status='queued';`, now(), id)
}

func (r *jobRepo) SetProviderRequest(ctx context.Context, tx repository.Tx, id, requestID, progress string) (bool, error) {
	const q = `UPDATE jobs SET provider_request_id=?, progress=?, updated_at=?
WHERE id=? AND status='processing' AND provider_request_id IS NULL;`
	return guarded(ctx, r.db, tx, q, requestID, progress, now(), id)
}

func (r *jobRepo) ClaimProviderResult(ctx context.Context, tx repository.Tx, id, requestID string) (bool, error) {
	const q = `UPDATE jobs SET provider_request_id=NULL, updated_at=?
WHERE id=? AND provider_request_id=? AND status='processing';`
	return guarded(ctx, r.db, tx, q, now(), id, requestID)
}

func (r *jobRepo) Complete(ctx context.Context, tx repository.Tx, id, outputURL string) (bool, error) {
	n := now()
	const q = `UPDATE jobs SET status='completed', output_url=?, progress='Completed', completed_at=?, updated_at=?
WHERE id=? AND status NOT IN ('completed','failed');`
	return guarded(ctx, r.db, tx, q, outputURL, n, n, id)
}

func (r *jobRepo) Fail(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	const q = `UPDATE jobs SET status='failed', error_message=?, progress='Failed', updated_at=?
WHERE id=? AND status NOT IN ('completed','failed');`
	return guarded(ctx, r.db, tx, q, reason, now(), id)
}

func (r *jobRepo) TouchRecovery(ctx context.Context, tx repository.Tx, id, progress string) (int, error) {
	row, err := pickRow(ctx, r.db, tx, `UPDATE jobs SET progress=?, recovery_attempts=recovery_attempts+1, updated_at=?
WHERE id=? AND status='processing' RETURNING recovery_attempts;`, progress, now(), id)
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
	_, err := execSQL(ctx, r.db, tx, `UPDATE jobs SET batch_id=NULL WHERE batch_id=?;`, batchID)
	return err
}
