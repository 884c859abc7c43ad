package repository

import (
	"context"
	"time"

	"mediaflow/internal/domain/model"
)

// PipelineJobRepository persists pipeline jobs. Every state change is a guarded
// update that reports whether it won; a false return means another worker
// moved the job first and the caller must stop.
type PipelineJobRepository interface {
	Create(ctx context.Context, tx Tx, j *model.PipelineJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PipelineJob, error)
	FindByProviderRequestID(ctx context.Context, tx Tx, requestID string) (*model.PipelineJob, error)
	ListByBatch(ctx context.Context, tx Tx, batchID string) ([]*model.PipelineJob, error)
	// ListStuck returns processing jobs not updated since olderThan.
	ListStuck(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PipelineJob, error)
	ListQueuedOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PipelineJob, error)

	// MarkProcessing moves queued -> processing.
	MarkProcessing(ctx context.Context, tx Tx, id string) (bool, error)
	// AdvanceStep stores results and moves current_step from expected to expected+1.
	AdvanceStep(ctx context.Context, tx Tx, id string, expectedStep int, results []model.StepResult, progress string) (bool, error)
	// AwaitProvider parks the job at expectedStep with a provider handle.
	AwaitProvider(ctx context.Context, tx Tx, id string, expectedStep int, requestID, progress string) (bool, error)
	// ClaimProviderResult clears the handle only if it still equals requestID.
	ClaimProviderResult(ctx context.Context, tx Tx, id, requestID string) (bool, error)
	Complete(ctx context.Context, tx Tx, id, outputURL string) (bool, error)
	Fail(ctx context.Context, tx Tx, id, reason string) (bool, error)
	// TouchRecovery updates the progress note of a still-running job and returns
	// the new recovery attempt count.
	TouchRecovery(ctx context.Context, tx Tx, id, progress string) (int, error)
	SetPublishStatus(ctx context.Context, tx Tx, id string, status model.PublishStatus) error
	DetachBatch(ctx context.Context, tx Tx, batchID string) error
}
