package adapter

import (
	"context"

	"mediaflow/internal/domain/model"
)

type CaptionRequest struct {
	JobName       string
	RecipientName string
	Platform      model.Platform
	Hint          string
}

// CaptionWriter drafts a post caption when none was supplied.
type CaptionWriter interface {
	Caption(ctx context.Context, req CaptionRequest) (string, error)
}

// BatchNotifier is told once when a batch reaches a terminal status.
type BatchNotifier interface {
	BatchFinished(ctx context.Context, b *model.Batch) error
}

// BatchDetails is the cached read model behind GET /batch-jobs/{id}.
type BatchDetails struct {
	Batch    *model.Batch         `json:"batch"`
	Progress int                  `json:"progress"`
	Jobs     []*model.PipelineJob `json:"jobs"`
}

type BatchCache interface {
	Get(ctx context.Context, id string) (*BatchDetails, bool)
	Set(ctx context.Context, id string, d *BatchDetails) error
	Invalidate(ctx context.Context, id string) error
}
