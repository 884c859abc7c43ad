package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
)

var _ repository.PostRepository = (*postRepo)(nil)

type postRepo struct {
	pool *pgxpool.Pool
}

func NewPostRepo(pool *pgxpool.Pool) *postRepo {
	return &postRepo{pool: pool}
}

const postColumns = `id, job_id, account_id, platform, caption, media_url, status, external_id, external_url,
  error_message, created_by, created_at, updated_at`

func scanPost(row pgx.Row) (*model.Post, error) {
	var (
		p                model.Post
		platform, status string
	)
	if err := row.Scan(&p.ID, &p.JobID, &p.AccountID, &platform, &p.Caption, &p.MediaURL, &status, &p.ExternalID,
		&p.ExternalURL, &p.ErrorMessage, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	p.Platform = model.Platform(platform)
	p.Status = model.PostStatus(status)
	return &p, nil
}

func (r *postRepo) Create(ctx context.Context, tx repository.Tx, p *model.Post) error {
	const q = `INSERT INTO posts (` + postColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (job_id, account_id, platform) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q, p.ID, p.JobID, p.AccountID, string(p.Platform), p.Caption, p.MediaURL,
		string(p.Status), p.ExternalID, p.ExternalURL, p.ErrorMessage, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *postRepo) FindByTarget(ctx context.Context, tx repository.Tx, jobID, accountID string, platform model.Platform) (*model.Post, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+postColumns+` FROM posts WHERE job_id=$1 AND account_id=$2 AND platform=$3;`,
		jobID, accountID, string(platform))
	if err != nil {
		return nil, err
	}
	return scanPost(row)
}

func (r *postRepo) Reclaim(ctx context.Context, tx repository.Tx, id, caption, mediaURL string, force bool) (bool, error) {
	const q = `UPDATE posts SET status='pending', caption=$2, media_url=$3, error_message='', updated_at=now()
WHERE id=$1 AND (status IN ('failed','cancelled') OR $4);`
	return guarded(ctx, r.pool, tx, q, id, caption, mediaURL, force)
}

func (r *postRepo) Update(ctx context.Context, tx repository.Tx, p *model.Post) error {
	const q = `UPDATE posts SET caption=$2, media_url=$3, status=$4, external_id=$5, external_url=$6,
  error_message=$7, updated_at=now() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Caption, p.MediaURL, string(p.Status), p.ExternalID,
		p.ExternalURL, p.ErrorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Post, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+postColumns+` FROM posts WHERE job_id=$1 ORDER BY created_at, id;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
