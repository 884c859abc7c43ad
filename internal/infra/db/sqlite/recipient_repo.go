package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
)

var _ repository.RecipientRepository = (*recipientRepo)(nil)

type recipientRepo struct {
	db *sql.DB
}

func NewRecipientRepo(db *sql.DB) *recipientRepo {
	return &recipientRepo{db: db}
}

func (r *recipientRepo) Save(ctx context.Context, tx repository.Tx, rc *model.Recipient) error {
	const q = `INSERT INTO recipients (id, name, reference_image_url, created_at) VALUES (?,?,?,?)
ON CONFLICT (id) DO UPDATE SET name=excluded.name, reference_image_url=excluded.reference_image_url;`
	_, err := execSQL(ctx, r.db, tx, q, rc.ID, rc.Name, rc.ReferenceImageURL, ts(rc.CreatedAt))
	return err
}

func scanRecipient(row scanner) (*model.Recipient, error) {
	var (
		rc        model.Recipient
		createdAt string
	)
	if err := row.Scan(&rc.ID, &rc.Name, &rc.ReferenceImageURL, &createdAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if rc.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *recipientRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Recipient, error) {
	row, err := pickRow(ctx, r.db, tx, `SELECT id, name, reference_image_url, created_at FROM recipients WHERE id=?;`, id)
	if err != nil {
		return nil, err
	}
	return scanRecipient(row)
}

func (r *recipientRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Recipient, error) {
	rows, err := queryRows(ctx, r.db, tx, `SELECT id, name, reference_image_url, created_at FROM recipients ORDER BY name, id;`)
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
VALUES (?,?,?,?,?,?)
ON CONFLICT (id) DO UPDATE SET recipient_id=excluded.recipient_id, platform=excluded.platform,
  handle=excluded.handle, active=excluded.active;`
	_, err := execSQL(ctx, r.db, tx, q, a.ID, a.RecipientID, string(a.Platform), a.Handle, a.Active, ts(a.CreatedAt))
	return err
}

const accountColumns = `id, recipient_id, platform, handle, active, created_at`

func collectAccounts(rows *sql.Rows) ([]*model.DistributionAccount, error) {
	defer rows.Close()
	var out []*model.DistributionAccount
	for rows.Next() {
		var (
			a                   model.DistributionAccount
			platform, createdAt string
		)
		if err := rows.Scan(&a.ID, &a.RecipientID, &platform, &a.Handle, &a.Active, &createdAt); err != nil {
			return nil, err
		}
		t, err := parseTS(createdAt)
		if err != nil {
			return nil, err
		}
		a.Platform, a.CreatedAt = model.Platform(platform), t
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *recipientRepo) ListAccounts(ctx context.Context, tx repository.Tx, recipientID string) ([]*model.DistributionAccount, error) {
	rows, err := queryRows(ctx, r.db, tx,
		`SELECT `+accountColumns+` FROM distribution_accounts WHERE recipient_id=? AND active=1 ORDER BY platform, id;`, recipientID)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *recipientRepo) FindAccounts(ctx context.Context, tx repository.Tx, ids []string) ([]*model.DistributionAccount, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT ` + accountColumns + ` FROM distribution_accounts WHERE id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `) ORDER BY platform, id;`
	rows, err := queryRows(ctx, r.db, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}
