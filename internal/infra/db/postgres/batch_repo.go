package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/db/codec"
)

var _ repository.BatchRepository = (*batchRepo)(nil)

type batchRepo struct {
	pool *pgxpool.Pool
}

func NewBatchRepo(pool *pgxpool.Pool) *batchRepo {
	return &batchRepo{pool: pool}
}

const batchColumns = `id, name, status, total_jobs, completed_jobs, failed_jobs, template, source_video_url,
  is_master, master_config, created_at, updated_at`

func scanBatch(row pgx.Row) (*model.Batch, error) {
	var (
		b                model.Batch
		status           string
		template, master []byte
	)
	if err := row.Scan(&b.ID, &b.Name, &status, &b.TotalJobs, &b.CompletedJobs, &b.FailedJobs, &template,
		&b.SourceVideoURL, &b.IsMaster, &master, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if b.Template, err = codec.DecodeSteps(template); err != nil {
		return nil, err
	}
	if b.Master, err = codec.DecodeOptional[model.MasterConfig](master); err != nil {
		return nil, fmt.Errorf("decode master config: %w", err)
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
	const q = `INSERT INTO batches (` + batchColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err = execSQL(ctx, r.pool, tx, q, b.ID, b.Name, string(b.Status), b.TotalJobs, b.CompletedJobs, b.FailedJobs,
		template, b.SourceVideoURL, b.IsMaster, master, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r *batchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Batch, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+batchColumns+` FROM batches WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanBatch(row)
}

func (r *batchRepo) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.BatchStatus) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE batches SET status=$2, updated_at=now() WHERE id=$1;`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementCounters relies on SET expressions reading the pre-update row, so
// the CASE sees the same counters the increments start from.
func (r *batchRepo) IncrementCounters(ctx context.Context, tx repository.Tx, id string, completed, failed int) (*model.Batch, error) {
	const q = `
UPDATE batches SET
  completed_jobs = completed_jobs + $2,
  failed_jobs    = failed_jobs + $3,
  status = CASE
    WHEN completed_jobs + $2 >= total_jobs THEN 'completed'
    WHEN failed_jobs + $3 >= total_jobs THEN 'failed'
    WHEN completed_jobs + $2 + failed_jobs + $3 >= total_jobs THEN 'partial'
    ELSE 'processing'
  END,
  updated_at = now()
WHERE id = $1 AND completed_jobs + failed_jobs + $2 + $3 <= total_jobs
RETURNING ` + batchColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, id, completed, failed)
	if err != nil {
		return nil, err
	}
	b, err := scanBatch(row)
	if err == domain.ErrNotFound {
		if _, ferr := r.FindByID(ctx, tx, id); ferr != nil {
			return nil, ferr
		}
		return nil, domain.ErrBatchOverflow
	}
	return b, err
}

func (r *batchRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM batches WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
