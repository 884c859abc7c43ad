package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/domain/ports/repository"
)

// BatchTracker folds child terminal transitions into batch counters.
type BatchTracker struct {
	batches  repository.BatchRepository
	cache    adapter.BatchCache
	notifier adapter.BatchNotifier
	log      *zerolog.Logger
}

// NewBatchTracker accepts a nil cache and a nil notifier.
func NewBatchTracker(batches repository.BatchRepository, cache adapter.BatchCache, notifier adapter.BatchNotifier, logger *zerolog.Logger) *BatchTracker {
	l := logger.With().Str("component", "batch_tracker").Logger()
	return &BatchTracker{batches: batches, cache: cache, notifier: notifier, log: &l}
}

// OnChildTerminal counts one child of batchID as completed or failed. The
// store increments and recomputes status in one statement, so concurrent
// children never lose an update.
func (t *BatchTracker) OnChildTerminal(ctx context.Context, batchID string, status model.JobStatus) error {
	completed, failed := 0, 1
	if status == model.JobStatusCompleted {
		completed, failed = 1, 0
	}
	b, err := t.batches.IncrementCounters(ctx, repository.NoTX, batchID, completed, failed)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			t.log.Debug().Str("batch_id", batchID).Msg("batch gone, child detached")
			return nil
		}
		return err
	}
	if t.cache != nil {
		if err := t.cache.Invalidate(ctx, batchID); err != nil {
			t.log.Warn().Err(err).Str("batch_id", batchID).Msg("batch cache invalidate failed")
		}
	}
	t.log.Info().Str("batch_id", batchID).Str("status", string(b.Status)).
		Int("completed", b.CompletedJobs).Int("failed", b.FailedJobs).Int("total", b.TotalJobs).Msg("batch progress")

	// counters move by one and never pass total, so exactly one child lands here
	if b.CompletedJobs+b.FailedJobs == b.TotalJobs && t.notifier != nil {
		if err := t.notifier.BatchFinished(ctx, b); err != nil {
			t.log.Warn().Err(err).Str("batch_id", batchID).Msg("batch notification failed")
		}
	}
	return nil
}
