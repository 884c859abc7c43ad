package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
)

var _ repository.RecipientRepository = (*recipientRepo)(nil)

type recipientRepo struct {
	pool *pgxpool.Pool
}

func NewRecipientRepo(pool *pgxpool.Pool) *recipientRepo {
	return &recipientRepo{pool: pool}
}

func (r *recipientRepo) Save(ctx context.Context, tx repository.Tx, rc *model.Recipient) error {
	const q = `INSERT INTO recipients (id, name, reference_image_url, created_at) VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, reference_image_url=EXCLUDED.reference_image_url;`
	_, err := execSQL(ctx, r.pool, tx, q, rc.ID, rc.Name, rc.ReferenceImageURL, rc.CreatedAt)
	return err
}

func scanRecipient(row pgx.Row) (*model.Recipient, error) {
	var rc model.Recipient
	if err := row.Scan(&rc.ID, &rc.Name, &rc.ReferenceImageURL, &rc.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &rc, nil
}

func (r *recipientRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Recipient, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT id, name, reference_image_url, created_at FROM recipients WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanRecipient(row)
}

func (r *recipientRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Recipient, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT id, name, reference_image_url, created_at FROM recipients ORDER BY name, id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Recipient
	for rows.Next() {
		rc, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *recipientRepo) SaveAccount(ctx context.Context, tx repository.Tx, a *model.DistributionAccount) error {
	const q = `INSERT INTO distribution_accounts (id, recipient_id, platform, handle, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET recipient_id=EXCLUDED.recipient_id, platform=EXCLUDED.platform,
  handle=EXCLUDED.handle, active=EXCLUDED.active;`
	_, err := execSQL(ctx, r.pool, tx, q, a.ID, a.RecipientID, string(a.Platform), a.Handle, a.Active, a.CreatedAt)
	return err
}

const accountColumns = `id, recipient_id, platform, handle, active, created_at`

func (r *recipientRepo) collectAccounts(rows pgx.Rows) ([]*model.DistributionAccount, error) {
	defer rows.Close()
	var out []*model.DistributionAccount
	for rows.Next() {
		var (
			a        model.DistributionAccount
			platform string
		)
		if err := rows.Scan(&a.ID, &a.RecipientID, &platform, &a.Handle, &a.Active, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Platform = model.Platform(platform)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *recipientRepo) ListAccounts(ctx context.Context, tx repository.Tx, recipientID string) ([]*model.DistributionAccount, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+accountColumns+` FROM distribution_accounts WHERE recipient_id=$1 AND active ORDER BY platform, id;`, recipientID)
	if err != nil {
		return nil, err
	}
	return r.collectAccounts(rows)
}

func (r *recipientRepo) FindAccounts(ctx context.Context, tx repository.Tx, ids []string) ([]*model.DistributionAccount, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+accountColumns+` FROM distribution_accounts WHERE id = ANY($1) ORDER BY platform, id;`, ids)
	if err != nil {
		return nil, err
	}
	return r.collectAccounts(rows)
}
