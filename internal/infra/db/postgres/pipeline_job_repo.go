package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/db/codec"
)

var _ repository.PipelineJobRepository = (*pipelineJobRepo)(nil)

type pipelineJobRepo struct {
	pool *pgxpool.Pool
}

func NewPipelineJobRepo(pool *pgxpool.Pool) *pipelineJobRepo {
	return &pipelineJobRepo{pool: pool}
}

const pipelineJobColumns = `id, name, steps, current_step, total_steps, status, progress, step_results,
  source_video_url, provider_request_id, batch_id, recipient_id, regenerated_from, publish,
  publish_status, output_url, error_message, recovery_attempts, created_at, updated_at, completed_at`

func scanPipelineJob(row pgx.Row) (*model.PipelineJob, error) {
	var (
		j                              model.PipelineJob
		steps, results, publish        []byte
		requestID, publishStatus       *string
		batchID, recipientID, regenFrm *string
		status                         string
	)
	if err := row.Scan(
		&j.ID, &j.Name, &steps, &j.CurrentStep, &j.TotalSteps, &status, &j.Progress, &results,
		&j.SourceVideoURL, &requestID, &batchID, &recipientID, &regenFrm, &publish,
		&publishStatus, &j.OutputURL, &j.ErrorMessage, &j.RecoveryAttempts, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt,
	); err != nil {
		return nil, notFound(err)
	}
	var err error
	if j.Steps, err = codec.DecodeSteps(steps); err != nil {
		return nil, err
	}
	if j.StepResults, err = codec.DecodeResults(results); err != nil {
		return nil, err
	}
	if j.Publish, err = codec.DecodeOptional[model.PublishOverrides](publish); err != nil {
		return nil, fmt.Errorf("decode publish overrides: %w", err)
	}
	j.Status = model.JobStatus(status)
	j.ProviderRequestID = codec.Deref(requestID)
	j.PublishStatus = model.PublishStatus(codec.Deref(publishStatus))
	j.BatchID, j.RecipientID, j.RegeneratedFrom = batchID, recipientID, regenFrm
	return &j, nil
}

func (r *pipelineJobRepo) collect(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.PipelineJob, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.PipelineJob
	for rows.Next() {
		j, err := scanPipelineJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *pipelineJobRepo) Create(ctx context.Context, tx repository.Tx, j *model.PipelineJob) error {
	steps, err := codec.EncodeSteps(j.Steps)
	if err != nil {
		return err
	}
	results, err := codec.EncodeResults(j.StepResults)
	if err != nil {
		return err
	}
	publish, err := codec.EncodeOptional(j.Publish)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO pipeline_jobs (` + pipelineJobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21);`
	_, err = execSQL(ctx, r.pool, tx, q,
		j.ID, j.Name, steps, j.CurrentStep, j.TotalSteps, string(j.Status), j.Progress, results,
		j.SourceVideoURL, codec.NullString(j.ProviderRequestID), codec.NullPtr(j.BatchID), codec.NullPtr(j.RecipientID),
		codec.NullPtr(j.RegeneratedFrom), publish, codec.NullString(string(j.PublishStatus)), j.OutputURL,
		j.ErrorMessage, j.RecoveryAttempts, j.CreatedAt, j.UpdatedAt, j.CompletedAt)
	return err
}

func (r *pipelineJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PipelineJob, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+pipelineJobColumns+` FROM pipeline_jobs WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanPipelineJob(row)
}

func (r *pipelineJobRepo) FindByProviderRequestID(ctx context.Context, tx repository.Tx, requestID string) (*model.PipelineJob, error) {
	const q = `SELECT ` + pipelineJobColumns + ` FROM pipeline_jobs
WHERE provider_request_id=$1 ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, requestID)
	if err != nil {
		return nil, err
	}
	return scanPipelineJob(row)
}

func (r *pipelineJobRepo) ListByBatch(ctx context.Context, tx repository.Tx, batchID string) ([]*model.PipelineJob, error) {
	return r.collect(ctx, tx, `SELECT `+pipelineJobColumns+` FROM pipeline_jobs WHERE batch_id=$1 ORDER BY created_at, id;`, batchID)
}

func (r *pipelineJobRepo) ListStuck(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PipelineJob, error) {
	const q = `SELECT ` + pipelineJobColumns + ` FROM pipeline_jobs
WHERE status='processing' AND updated_at < $1 ORDER BY updated_at LIMIT $2;`
	return r.collect(ctx, tx, q, olderThan, limit)
}

func (r *pipelineJobRepo) ListQueuedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PipelineJob, error) {
	const q = `SELECT ` + pipelineJobColumns + ` FROM pipeline_jobs
WHERE status='queued' AND updated_at < $1 ORDER BY updated_at LIMIT $2;`
	return r.collect(ctx, tx, q, olderThan, limit)
}

func (r *pipelineJobRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE pipeline_jobs SET status='processing', progress='Starting', updated_at=now()
WHERE id=$1 AND status='queued';`
	return guarded(ctx, r.pool, tx, q, id)
}

func (r *pipelineJobRepo) AdvanceStep(ctx context.Context, tx repository.Tx, id string, expectedStep int, results []model.StepResult, progress string) (bool, error) {
	b, err := codec.EncodeResults(results)
	if err != nil {
		return false, err
	}
	const q = `
UPDATE pipeline_jobs
   SET current_step = current_step + 1, step_results = $3, progress = $4, updated_at = now()
 WHERE id = $1 AND current_step = $2 AND current_step < total_steps
   AND status = 'processing' AND provider_request_id IS NULL;`
	return guarded(ctx, r.pool, tx, q, id, expectedStep, b, progress)
}

func (r *pipelineJobRepo) AwaitProvider(ctx context.Context, tx repository.Tx, id string, expectedStep int, requestID, progress string) (bool, error) {
	const q = `
UPDATE pipeline_jobs
   SET provider_request_id = $3, progress = $4, recovery_attempts = 0, updated_at = now()
 WHERE id = $1 AND current_step = $2 AND status = 'processing' AND provider_request_id IS NULL;`
	return guarded(ctx, r.pool, tx, q, id, expectedStep, requestID, progress)
}

func (r *pipelineJobRepo) ClaimProviderResult(ctx context.Context, tx repository.Tx, id, requestID string) (bool, error) {
	const q = `
UPDATE pipeline_jobs SET provider_request_id = NULL, updated_at = now()
 WHERE id = $1 AND provider_request_id = $2 AND status = 'processing';`
	return guarded(ctx, r.pool, tx, q, id, requestID)
}

func (r *pipelineJobRepo) Complete(ctx context.Context, tx repository.Tx, id, outputURL string) (bool, error) {
	const q = `
UPDATE pipeline_jobs
   SET status = 'completed', output_url = $2, progress = 'Completed', completed_at = now(), updated_at = now()
 WHERE id = $1 AND status NOT IN ('completed','failed');`
	return guarded(ctx, r.pool, tx, q, id, outputURL)
}

func (r *pipelineJobRepo) Fail(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	const q = `
UPDATE pipeline_jobs
   SET status = 'failed', error_message = $2, progress = 'Failed', updated_at = now()
 WHERE id = $1 AND status NOT IN ('completed','failed');`
	return guarded(ctx, r.pool, tx, q, id, reason)
}

func (r *pipelineJobRepo) TouchRecovery(ctx context.Context, tx repository.Tx, id, progress string) (int, error) {
	const q = `
UPDATE pipeline_jobs SET progress = $2, recovery_attempts = recovery_attempts + 1, updated_at = now()
 WHERE id = $1 AND status = 'processing'
RETURNING recovery_attempts;`
	row, err := pickRow(ctx, r.pool, tx, q, id, progress)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, notFound(err)
	}
	return n, nil
}

func (r *pipelineJobRepo) SetPublishStatus(ctx context.Context, tx repository.Tx, id string, status model.PublishStatus) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE pipeline_jobs SET publish_status=$2, updated_at=now() WHERE id=$1;`,
		id, codec.NullString(string(status)))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows)
	}
	return nil
}

func (r *pipelineJobRepo) DetachBatch(ctx context.Context, tx repository.Tx, batchID string) error {
	_, err := execSQL(ctx, r.pool, tx, `UPDATE pipeline_jobs SET batch_id=NULL WHERE batch_id=$1;`, batchID)
	return err
}
