package repository

import (
	"context"

	"mediaflow/internal/domain/model"
)

type PostRepository interface {
	// Create returns domain.ErrAlreadyExists when the (job, account, platform) row exists.
	Create(ctx context.Context, tx Tx, p *model.Post) error
	FindByTarget(ctx context.Context, tx Tx, jobID, accountID string, platform model.Platform) (*model.Post, error)
	// Reclaim resets an existing row to pending if it is failed or cancelled, or force is set.
	Reclaim(ctx context.Context, tx Tx, id, caption, mediaURL string, force bool) (bool, error)
	Update(ctx context.Context, tx Tx, p *model.Post) error
	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.Post, error)
}
