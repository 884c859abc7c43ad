package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Requeuer interface {
	RequeueStale(ctx context.Context, age time.Duration, limit int) (int, error)
}

// QueueDispatcher hands queued pipeline jobs back to the worker pool. Jobs
// land here after a restart or when the pool was full at submission.
type QueueDispatcher struct {
	jobs     Requeuer
	interval time.Duration
	age      time.Duration
	limit    int
	log      *zerolog.Logger
}

func NewQueueDispatcher(jobs Requeuer, interval, age time.Duration, limit int, logger *zerolog.Logger) *QueueDispatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	if limit <= 0 {
		limit = 100
	}
	l := logger.With().Str("component", "QueueDispatcher").Logger()
	return &QueueDispatcher{jobs: jobs, interval: interval, age: age, limit: limit, log: &l}
}

func (d *QueueDispatcher) Run(ctx context.Context) error {
	d.log.Info().Dur("interval", d.interval).Dur("age", d.age).Msg("Starting queue dispatcher")
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("Stopping queue dispatcher")
			return ctx.Err()
		case <-t.C:
			d.tick(ctx)
		}
	}
}

func (d *QueueDispatcher) tick(ctx context.Context) {
	n, err := d.jobs.RequeueStale(ctx, d.age, d.limit)
	if err != nil {
		d.log.Error().Err(err).Msg("requeue failed")
		return
	}
	if n > 0 {
		d.log.Info().Int("count", n).Msg("queued jobs handed to the pool")
	}
}
