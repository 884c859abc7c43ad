package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/infra/metrics"
	"mediaflow/internal/usecase"
)

type Sweeper interface {
	Sweep(ctx context.Context, trigger string) (*usecase.RecoveryReport, error)
}

// RecoveryWorker periodically sweeps jobs stuck waiting on a provider. It
// covers lost webhooks and providers that never send one.
type RecoveryWorker struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewRecoveryWorker(sweeper Sweeper, interval time.Duration, logger *zerolog.Logger) *RecoveryWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	l := logger.With().Str("component", "RecoveryWorker").Logger()
	return &RecoveryWorker{sweeper: sweeper, interval: interval, timeout: interval, log: &l}
}

func (w *RecoveryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting recovery worker")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping recovery worker")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *RecoveryWorker) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	report, err := w.sweeper.Sweep(ctx, "schedule")
	if errors.Is(err, domain.ErrSweepCooldown) {
		w.log.Debug().Msg("sweep skipped, ran recently")
		return
	}
	RecordSweep("schedule", report, err)
	if err != nil {
		w.log.Error().Err(err).Msg("recovery sweep failed")
		return
	}
	if len(report.Items) > 0 {
		w.log.Info().Int("checked", report.Checked).Int("acted", len(report.Items)).Msg("recovery sweep finished")
	}
}

// RecordSweep counts a sweep and each job it touched.
func RecordSweep(trigger string, report *usecase.RecoveryReport, err error) {
	metrics.IncRecoverySweep(trigger, err)
	if report == nil {
		return
	}
	for _, it := range report.Items {
		metrics.IncRecoveryJob(it.Action)
	}
}
