package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/db/codec"
)

var _ repository.BatchRepository = (*batchRepo)(nil)

type batchRepo struct {
	db *sql.DB
}

func NewBatchRepo(db *sql.DB) *batchRepo {
	return &batchRepo{db: db}
}

const batchColumns = `id, name, status, total_jobs, completed_jobs, failed_jobs, template, source_video_url,
  is_master, master_config, created_at, updated_at`

func scanBatch(row scanner) (*model.Batch, error) {
	var (
		b                            model.Batch
		template, master             []byte
		status, createdAt, updatedAt string
	)
	if err := row.Scan(&b.ID, &b.Name, &status, &b.TotalJobs, &b.CompletedJobs, &b.FailedJobs, &template,
		&b.SourceVideoURL, &b.IsMaster, &master, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if b.Template, err = codec.DecodeSteps(template); err != nil {
		return nil, err
	}
	if b.Master, err = codec.DecodeOptional[model.MasterConfig](master); err != nil {
		return nil, fmt.Errorf("decode master config: %w", err)
	}
	if b.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BatchStatus(status)
	return &b, nil
}

func (r *batchRepo) Create(ctx context.Context, tx repository.Tx, b *model.Batch) error {
	template, err := codec.EncodeSteps(b.Template)
	if err != nil {
		return err
	}
	master, err := codec.EncodeOptional(b.Master)
	if err != nil {
		return err
	}
	const q = `INSERT INTO batches (` + batchColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?);`
	_, err = execSQL(ctx, r.db, tx, q, b.ID, b.Name, string(b.Status), b.TotalJobs, b.CompletedJobs, b.FailedJobs,
		string(template), b.SourceVideoURL, b.IsMaster, nullJSON(master), ts(b.CreatedAt), ts(b.UpdatedAt))
	return err
}

func (r *batchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Batch, error) {
	row, err := pickRow(ctx, r.db, tx, `SELECT `+batchColumns+` FROM batches WHERE id=?;`, id)
	if err != nil {
		return nil, err
	}
	return scanBatch(row)
}

func (r *batchRepo) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.BatchStatus) error {
	return mustAffect(execSQL(ctx, r.db, tx, `UPDATE batches SET status=?, updated_at=? WHERE id=?;`, string(status), now(), id))
}

func (r *batchRepo) IncrementCounters(ctx context.Context, tx repository.Tx, id string, completed, failed int) (*model.Batch, error) {
	const q = `
UPDATE batches SET
  completed_jobs = completed_jobs + ?1,
  failed_jobs    = failed_jobs + ?2,
  status = CASE
    WHEN completed_jobs + ?1 >= total_jobs THEN 'completed'
    WHEN failed_jobs + ?2 >= total_jobs THEN 'failed'
    WHEN completed_jobs + ?1 + failed_jobs + ?2 >= total_jobs THEN 'partial'
    ELSE 'processing'
  END,
  updated_at = ?3
WHERE id = ?4 AND completed_jobs + failed_jobs + ?1 + ?2 <= total_jobs
RETURNING ` + batchColumns + `;`
	row, err := pickRow(ctx, r.db, tx, q, completed, failed, now(), id)
	if err != nil {
		return nil, err
	}
	b, err := scanBatch(row)
	if errors.Is(err, domain.ErrNotFound) {
		if _, ferr := r.FindByID(ctx, tx, id); ferr != nil {
			return nil, ferr
		}
		return nil, domain.ErrBatchOverflow
	}
	return b, err
}

func (r *batchRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	return mustAffect(execSQL(ctx, r.db, tx, `DELETE FROM batches WHERE id=?;`, id))
}
