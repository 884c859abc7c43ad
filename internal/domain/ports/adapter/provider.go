package adapter

import (
	"context"

	"mediaflow/internal/domain/model"
)

type ProviderStatus string

const (
	ProviderQueued    ProviderStatus = "queued"
	ProviderRunning   ProviderStatus = "running"
	ProviderCompleted ProviderStatus = "completed"
	ProviderFailed    ProviderStatus = "failed"
	ProviderUnknown   ProviderStatus = "unknown"
)

// GenerationRequest is one submission to the generation provider.
type GenerationRequest struct {
	JobID             string
	Kind              model.StepKind
	Provider          string // empty selects the default provider
	Model             string
	InputURL          string
	ReferenceImageURL string
	ImageURL          string
	Prompt            string
	AspectRatio       string
	DurationSeconds   int
	Options           map[string]any
	WebhookURL        string
}

// GenerationProvider is the slow external generation API.
type GenerationProvider interface {
	Submit(ctx context.Context, req GenerationRequest) (requestID string, err error)
	PollStatus(ctx context.Context, requestID string) (ProviderStatus, error)
	// PollResult returns the artifact URL of a completed request, or the
	// provider's failure reason wrapped in domain.ErrProviderFailed.
	PollResult(ctx context.Context, requestID string) (artifactURL string, err error)
	// FetchArtifact downloads an artifact URL returned by the provider.
	FetchArtifact(ctx context.Context, artifactURL string) ([]byte, error)
}
