package usecase

import "context"

// TaskRunner runs work detached from the caller. Go returns domain.ErrQueueFull
// when the work cannot be accepted right now.
type TaskRunner interface {
	Go(name string, task func(ctx context.Context) error) error
}

// WebhookURLBuilder issues the signed callback url a provider reports back to.
type WebhookURLBuilder interface {
	WebhookURL(jobID string) (string, error)
}
