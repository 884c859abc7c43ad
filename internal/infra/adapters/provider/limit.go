package provider

import (
	"context"

	"mediaflow/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*limited)(nil)

// limited caps concurrent submissions and downloads. Status polls are cheap
// and pass straight through.
type limited struct {
	inner adapter.GenerationProvider
	sem   chan struct{}
}

func NewLimited(inner adapter.GenerationProvider, maxConcurrent int) adapter.GenerationProvider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limited{inner: inner, sem: make(chan struct{}, maxConcurrent)}
}

func (l *limited) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limited) Submit(ctx context.Context, req adapter.GenerationRequest) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer func() { <-l.sem }()
	return l.inner.Submit(ctx, req)
}

func (l *limited) PollStatus(ctx context.Context, requestID string) (adapter.ProviderStatus, error) {
	return l.inner.PollStatus(ctx, requestID)
}

func (l *limited) PollResult(ctx context.Context, requestID string) (string, error) {
	return l.inner.PollResult(ctx, requestID)
}

func (l *limited) FetchArtifact(ctx context.Context, artifactURL string) ([]byte, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() { <-l.sem }()
	return l.inner.FetchArtifact(ctx, artifactURL)
}
