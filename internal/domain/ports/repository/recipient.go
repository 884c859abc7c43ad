package repository

import (
	"context"

	"mediaflow/internal/domain/model"
)

type RecipientRepository interface {
	Save(ctx context.Context, tx Tx, r *model.Recipient) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Recipient, error)
	List(ctx context.Context, tx Tx) ([]*model.Recipient, error)
	SaveAccount(ctx context.Context, tx Tx, a *model.DistributionAccount) error
	ListAccounts(ctx context.Context, tx Tx, recipientID string) ([]*model.DistributionAccount, error)
	FindAccounts(ctx context.Context, tx Tx, ids []string) ([]*model.DistributionAccount, error)
}
