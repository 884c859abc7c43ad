package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
)

var _ adapter.BatchNotifier = (*NoopNotifier)(nil)

// NoopNotifier logs instead of sending, for local runs without a bot token.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(log *zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: log}
}

func (n *NoopNotifier) BatchFinished(ctx context.Context, b *model.Batch) error {
	n.log.Info().Str("batch_id", b.ID).Str("status", string(b.Status)).
		Int("completed", b.CompletedJobs).Int("failed", b.FailedJobs).Msg("[noop-telegram] batch finished")
	return nil
}
