package repository

import (
	"context"

	"mediaflow/internal/domain/model"
)

type BatchRepository interface {
	Create(ctx context.Context, tx Tx, b *model.Batch) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Batch, error)
	SetStatus(ctx context.Context, tx Tx, id string, status model.BatchStatus) error
	// IncrementCounters adds to the counters and recomputes status in one
	// statement, returning the updated batch.
	IncrementCounters(ctx context.Context, tx Tx, id string, completed, failed int) (*model.Batch, error)
	Delete(ctx context.Context, tx Tx, id string) error
}
