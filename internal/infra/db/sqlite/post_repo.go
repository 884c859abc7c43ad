package sqlite

import (
	"context"
	"database/sql"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
)

var _ repository.PostRepository = (*postRepo)(nil)

type postRepo struct {
	db *sql.DB
}

func NewPostRepo(db *sql.DB) *postRepo {
	return &postRepo{db: db}
}

const postColumns = `id, job_id, account_id, platform, caption, media_url, status, external_id, external_url,
  error_message, created_by, created_at, updated_at`

func scanPost(row scanner) (*model.Post, error) {
	var (
		p                                      model.Post
		platform, status, createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.JobID, &p.AccountID, &platform, &p.Caption, &p.MediaURL, &status, &p.ExternalID,
		&p.ExternalURL, &p.ErrorMessage, &p.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if p.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return nil, err
	}
	p.Platform = model.Platform(platform)
	p.Status = model.PostStatus(status)
	return &p, nil
}

func (r *postRepo) Create(ctx context.Context, tx repository.Tx, p *model.Post) error {
	const q = `INSERT INTO posts (` + postColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (job_id, account_id, platform) DO NOTHING;`
	res, err := execSQL(ctx, r.db, tx, q, p.ID, p.JobID, p.AccountID, string(p.Platform), p.Caption, p.MediaURL,
		string(p.Status), p.ExternalID, p.ExternalURL, p.ErrorMessage, p.CreatedBy, ts(p.CreatedAt), ts(p.UpdatedAt))
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *postRepo) FindByTarget(ctx context.Context, tx repository.Tx, jobID, accountID string, platform model.Platform) (*model.Post, error) {
	row, err := pickRow(ctx, r.db, tx,
		`SELECT `+postColumns+` FROM posts WHERE job_id=? AND account_id=? AND platform=?;`, jobID, accountID, string(platform))
	if err != nil {
		return nil, err
	}
	return scanPost(row)
}

func (r *postRepo) Reclaim(ctx context.Context, tx repository.Tx, id, caption, mediaURL string, force bool) (bool, error) {
	const q = `UPDATE posts SET status='pending', caption=?, media_url=?, error_message='', updated_at=?
WHERE id=? AND (status IN ('failed','cancelled') OR ?);`
	return guarded(ctx, r.db, tx, q, caption, mediaURL, now(), id, force)
}

func (r *postRepo) Update(ctx context.Context, tx repository.Tx, p *model.Post) error {
	const q = `UPDATE posts SET caption=?, media_url=?, status=?, external_id=?, external_url=?, error_message=?, updated_at=?
WHERE id=?;`
	return mustAffect(execSQL(ctx, r.db, tx, q, p.Caption, p.MediaURL, string(p.Status), p.ExternalID, p.ExternalURL,
		p.ErrorMessage, now(), p.ID))
}

func (r *postRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Post, error) {
	rows, err := queryRows(ctx, r.db, tx, `SELECT `+postColumns+` FROM posts WHERE job_id=? ORDER BY created_at, id;`, jobID)
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
