package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/db/codec"
)

var _ repository.PipelineJobRepository = (*pipelineJobRepo)(nil)

type pipelineJobRepo struct {
	db *sql.DB
}

func NewPipelineJobRepo(db *sql.DB) *pipelineJobRepo {
	return &pipelineJobRepo{db: db}
}

const pipelineJobColumns = `id, name, steps, current_step, total_steps, status, progress, step_results,
  source_video_url, provider_request_id, batch_id, recipient_id, regenerated_from, publish,
  publish_status, output_url, error_message, recovery_attempts, created_at, updated_at, completed_at`

func scanPipelineJob(row scanner) (*model.PipelineJob, error) {
	var (
		j                                   model.PipelineJob
		steps, results, publish             []byte
		requestID, batchID, recipientID     sql.NullString
		regenFrom, publishStatus, completed sql.NullString
		status, createdAt, updatedAt        string
	)
	if err := row.Scan(
		&j.ID, &j.Name, &steps, &j.CurrentStep, &j.TotalSteps, &status, &j.Progress, &results,
		&j.SourceVideoURL, &requestID, &batchID, &recipientID, &regenFrom, &publish,
		&publishStatus, &j.OutputURL, &j.ErrorMessage, &j.RecoveryAttempts, &createdAt, &updatedAt, &completed,
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
	if j.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return nil, err
	}
	if j.CompletedAt, err = parseNullTS(completed); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	j.ProviderRequestID = requestID.String
	j.PublishStatus = model.PublishStatus(publishStatus.String)
	j.BatchID, j.RecipientID, j.RegeneratedFrom = nullable(batchID), nullable(recipientID), nullable(regenFrom)
	return &j, nil
}

func (r *pipelineJobRepo) collect(rows *sql.Rows) ([]*model.PipelineJob, error) {
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
	const q = `INSERT INTO pipeline_jobs (` + pipelineJobColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?);`
	_, err = execSQL(ctx, r.db, tx, q,
		j.ID, j.Name, string(steps), j.CurrentStep, j.TotalSteps, string(j.Status), j.Progress, string(results),
		j.SourceVideoURL, codec.NullString(j.ProviderRequestID), codec.NullPtr(j.BatchID), codec.NullPtr(j.RecipientID),
		codec.NullPtr(j.RegeneratedFrom), nullJSON(publish), codec.NullString(string(j.PublishStatus)),
		j.OutputURL, j.ErrorMessage, j.RecoveryAttempts, ts(j.CreatedAt), ts(j.UpdatedAt), nullTS(j.CompletedAt))
	return err
}

func (r *pipelineJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PipelineJob, error) {
	row, err := pickRow(ctx, r.db, tx, `SELECT `+pipelineJobColumns+` FROM pipeline_jobs WHERE id=?;`, id)
	if err != nil {
		return nil, err
	}
	return scanPipelineJob(row)
}

func (r *pipelineJobRepo) FindByProviderRequestID(ctx context.Context, tx repository.Tx, requestID string) (*model.PipelineJob, error) {
	row, err := pickRow(ctx, r.db, tx,
		`SELECT `+pipelineJobColumns+` FROM pipeline_jobs WHERE provider_request_id=? ORDER BY created_at DESC LIMIT 1;`, requestID)
	if err != nil {
		return nil, err
	}
	return scanPipelineJob(row)
}

func (r *pipelineJobRepo) ListByBatch(ctx context.Context, tx repository.Tx, batchID string) ([]*model.PipelineJob, error) {
	rows, err := queryRows(ctx, r.db, tx,
		`SELECT `+pipelineJobColumns+` FROM pipeline_jobs WHERE batch_id=? ORDER BY created_at, id;`, batchID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *pipelineJobRepo) ListStuck(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PipelineJob, error) {
	rows, err := queryRows(ctx, r.db, tx,
		`SELECT `+pipelineJobColumns+` FROM pipeline_jobs WHERE status='processing' AND updated_at < ? ORDER BY updated_at LIMIT ?;`,
		ts(olderThan), limit)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *pipelineJobRepo) ListQueuedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PipelineJob, error) {
	rows, err := queryRows(ctx, r.db, tx,
		`SELECT `+pipelineJobColumns+` FROM pipeline_jobs WHERE status='queued' AND updated_at < ? ORDER BY updated_at LIMIT ?;`,
		ts(olderThan), limit)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *pipelineJobRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	return guarded(ctx, r.db, tx,
		`UPDATE pipeline_jobs SET status='processing', progress='Starting', updated_at=? WHERE id=? AND status='queued';`,
		now(), id)
}

func (r *pipelineJobRepo) AdvanceStep(ctx context.Context, tx repository.Tx, id string, expectedStep int, results []model.StepResult, progress string) (bool, error) {
	b, err := codec.EncodeResults(results)
	if err != nil {
		return false, err
	}
	const q = `UPDATE pipeline_jobs SET current_step=current_step+1, step_results=?, progress=?, updated_at=?
WHERE id=? AND current_step=? AND current_step<total_steps AND status='processing' AND provider_request_id IS NULL;`
	return guarded(ctx, r.db, tx, q, string(b), progress, now(), id, expectedStep)
}

func (r *pipelineJobRepo) AwaitProvider(ctx context.Context, tx repository.Tx, id string, expectedStep int, requestID, progress string) (bool, error) {
	const q = `UPDATE pipeline_jobs SET provider_request_id=?, progress=?, recovery_attempts=0, updated_at=?
WHERE id=? AND current_step=? AND current_step<total_steps AND status='processing' AND provider_request_id IS NULL;`
	return guarded(ctx, r.db, tx, q, requestID, progress, now(), id, expectedStep)
}

func (r *pipelineJobRepo) ClaimProviderResult(ctx context.Context, tx repository.Tx, id, requestID string) (bool, error) {
	const q = `UPDATE pipeline_jobs SET provider_request_id=NULL, updated_at=?
WHERE id=? AND provider_request_id=? AND status='processing';`
	return guarded(ctx, r.db, tx, q, now(), id, requestID)
}

func (r *pipelineJobRepo) Complete(ctx context.Context, tx repository.Tx, id, outputURL string) (bool, error) {
	n := now()
	const q = `UPDATE pipeline_jobs SET status='completed', output_url=?, progress='Completed', completed_at=?, updated_at=?
WHERE id=? AND status NOT IN ('completed','failed');`
	return guarded(ctx, r.db, tx, q, outputURL, n, n, id)
}

func (r *pipelineJobRepo) Fail(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	const q = `UPDATE pipeline_jobs SET status='failed', error_message=?, progress='Failed', updated_at=?
WHERE id=? AND status NOT IN ('completed','failed');`
	return guarded(ctx, r.db, tx, q, reason, now(), id)
}

func (r *pipelineJobRepo) TouchRecovery(ctx context.Context, tx repository.Tx, id, progress string) (int, error) {
	row, err := pickRow(ctx, r.db, tx, `UPDATE pipeline_jobs SET progress=?, recovery_attempts=recovery_attempts+1, updated_at=?
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

func (r *pipelineJobRepo) SetPublishStatus(ctx context.Context, tx repository.Tx, id string, status model.PublishStatus) error {
	return mustAffect(execSQL(ctx, r.db, tx, `UPDATE pipeline_jobs SET publish_status=?, updated_at=? WHERE id=?;`,
		codec.NullString(string(status)), now(), id))
}

func (r *pipelineJobRepo) DetachBatch(ctx context.Context, tx repository.Tx, batchID string) error {
	_, err := execSQL(ctx, r.db, tx, `UPDATE pipeline_jobs SET batch_id=NULL WHERE batch_id=?;`, batchID)
	return err
}

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
