package repository

import (
	"context"
	"time"

	"mediaflow/internal/domain/model"
)

type JobRepository interface {
	Create(ctx context.Context, tx Tx, j *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	FindByProviderRequestID(ctx context.Context, tx Tx, requestID string) (*model.Job, error)
	ListStuck(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Job, error)

	MarkProcessing(ctx context.Context, tx Tx, id string) (bool, error)
	SetProviderRequest(ctx context.Context, tx Tx, id, requestID, progress string) (bool, error)
	ClaimProviderResult(ctx context.Context, tx Tx, id, requestID string) (bool, error)
	Complete(ctx context.Context, tx Tx, id, outputURL string) (bool, error)
	Fail(ctx context.Context, tx Tx, id, reason string) (bool, error)
	TouchRecovery(ctx context.Context, tx Tx, id, progress string) (int, error)
	DetachBatch(ctx context.Context, tx Tx, batchID string) error
}
