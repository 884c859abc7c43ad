package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/httpx"
)

const recoveryCooldownKey = "recovery-sweep"

type RecoveryOptions struct {
	StuckAfter  time.Duration
	MinInterval time.Duration
	MaxAttempts int
	BatchSize   int
}

type RecoveryItem struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"` // pipeline|legacy
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

type RecoveryReport struct {
	Trigger string         `json:"trigger"`
	Checked int            `json:"checked"`
	Items   []RecoveryItem `json:"items"`
}

// RecoveryUseCase polls the provider for jobs whose webhook never arrived.
type RecoveryUseCase struct {
	pjobs    repository.PipelineJobRepository
	jobs     repository.JobRepository
	provider adapter.GenerationProvider
	router   *CompletionRouter
	runner   *PipelineRunner
	cooldown adapter.Cooldown
	opts     RecoveryOptions
	now      func() time.Time
	log      *zerolog.Logger
}

func NewRecoveryUseCase(
	pjobs repository.PipelineJobRepository,
	jobs repository.JobRepository,
	provider adapter.GenerationProvider,
	router *CompletionRouter,
	runner *PipelineRunner,
	cooldown adapter.Cooldown,
	opts RecoveryOptions,
	logger *zerolog.Logger,
) *RecoveryUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	l := logger.With().Str("component", "recovery").Logger()
	return &RecoveryUseCase{
		pjobs: pjobs, jobs: jobs, provider: provider, router: router, runner: runner,
		cooldown: cooldown, opts: opts, now: time.Now, log: &l,
	}
}

// Sweep checks every stuck job once. A second sweep inside MinInterval fails
// with domain.ErrSweepCooldown.
func (u *RecoveryUseCase) Sweep(ctx context.Context, trigger string) (*RecoveryReport, error) {
	if u.cooldown != nil && u.opts.MinInterval > 0 {
		ok, err := u.cooldown.Allow(ctx, recoveryCooldownKey, u.opts.MinInterval)
		if err != nil {
			return nil, fmt.Errorf("recovery cooldown: %w", err)
		}
		if !ok {
			return nil, domain.ErrSweepCooldown
		}
	}
	cutoff := u.now().Add(-u.opts.StuckAfter)
	report := &RecoveryReport{Trigger: trigger, Items: []RecoveryItem{}}

	pjobs, err := u.pjobs.ListStuck(ctx, repository.NoTX, cutoff, u.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	for _, j := range pjobs {
		report.Items = append(report.Items, u.recoverPipeline(ctx, j))
	}
	jobs, err := u.jobs.ListStuck(ctx, repository.NoTX, cutoff, u.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		report.Items = append(report.Items, u.recoverLegacy(ctx, j))
	}
	report.Checked = len(report.Items)

	u.log.Info().Str("trigger", trigger).Int("checked", report.Checked).Msg("recovery sweep finished")
	return report, nil
}

func (u *RecoveryUseCase) recoverPipeline(ctx context.Context, j *model.PipelineJob) RecoveryItem {
	item := RecoveryItem{JobID: j.ID, Kind: "pipeline"}
	if j.ProviderRequestID == "" {
		item.Action, item.Detail = "failed", domain.ErrRequestIDMissing.Error()
		if err := u.runner.Fail(ctx, j, domain.ErrRequestIDMissing.Error()); err != nil {
			item.Action, item.Detail = "error", err.Error()
		}
		return item
	}
	label := j.StepLabel(j.CurrentStep, "still processing at provider")
	return u.poll(ctx, item, j.ProviderRequestID,
		func(progress string) (int, error) {
			if progress == "" {
				progress = label
			}
			return u.pjobs.TouchRecovery(ctx, repository.NoTX, j.ID, progress)
		},
		func(reason string) error { return u.runner.Fail(ctx, j, reason) },
		func(out Outcome) error { return u.router.Resume(ctx, j.ID, j.ProviderRequestID, out) },
	)
}

func (u *RecoveryUseCase) recoverLegacy(ctx context.Context, j *model.Job) RecoveryItem {
	item := RecoveryItem{JobID: j.ID, Kind: "legacy"}
	if j.ProviderRequestID == "" {
		item.Action, item.Detail = "failed", domain.ErrRequestIDMissing.Error()
		if err := u.router.failLegacy(ctx, j, domain.ErrRequestIDMissing.Error()); err != nil {
			item.Action, item.Detail = "error", err.Error()
		}
		return item
	}
	return u.poll(ctx, item, j.ProviderRequestID,
		func(progress string) (int, error) {
			if progress == "" {
				progress = "Face swap: still processing at provider"
			}
			return u.jobs.TouchRecovery(ctx, repository.NoTX, j.ID, progress)
		},
		func(reason string) error { return u.router.failLegacy(ctx, j, reason) },
		func(out Outcome) error { return u.router.ResumeLegacy(ctx, j.ID, j.ProviderRequestID, out) },
	)
}

// poll asks the provider about one request and routes the answer.
func (u *RecoveryUseCase) poll(
	ctx context.Context,
	item RecoveryItem,
	requestID string,
	touch func(progress string) (int, error),
	fail func(reason string) error,
	resume func(Outcome) error,
) RecoveryItem {
	log := u.log.With().Str("job_id", item.JobID).Str("request_id", requestID).Logger()

	status, err := u.provider.PollStatus(ctx, requestID)
	if err != nil {
		log.Warn().Err(err).Msg("recovery poll failed")
		if permanentPollError(err) {
			return u.giveUp(item, fmt.Sprintf("provider status check failed: %v", err), fail)
		}
		attempts, terr := touch("")
		if errors.Is(terr, domain.ErrNotFound) {
			item.Action = "skipped"
			return item
		}
		if terr != nil {
			log.Warn().Err(terr).Msg("recovery touch failed")
		}
		if terr == nil && u.opts.MaxAttempts > 0 && attempts >= u.opts.MaxAttempts {
			return u.giveUp(item, fmt.Sprintf("provider did not complete after %d recovery attempts", attempts), fail)
		}
		item.Action, item.Detail = "error", err.Error()
		return item
	}

	switch status {
	case adapter.ProviderQueued, adapter.ProviderRunning:
		attempts, err := touch("")
		if errors.Is(err, domain.ErrNotFound) {
			item.Action = "skipped"
			return item
		}
		if err != nil {
			item.Action, item.Detail = "error", err.Error()
			return item
		}
		if u.opts.MaxAttempts > 0 && attempts >= u.opts.MaxAttempts {
			return u.giveUp(item, fmt.Sprintf("provider did not complete after %d recovery attempts", attempts), fail)
		}
		item.Action, item.Detail = "waiting", fmt.Sprintf("%s (attempt %d)", status, attempts)
		return item

	case adapter.ProviderCompleted:
		url, err := u.provider.PollResult(ctx, requestID)
		out := Outcome{Success: true, ArtifactURL: url}
		item.Action = "resumed"
		if err != nil {
			if !errors.Is(err, domain.ErrProviderFailed) {
				item.Action, item.Detail = "error", err.Error()
				return item
			}
			out = Outcome{Reason: err.Error()}
			item.Action, item.Detail = "failed", out.Reason
		}
		if err := resume(out); err != nil {
			item.Action, item.Detail = "error", err.Error()
		}
		return item

	default:
		reason := fmt.Sprintf("provider reported %s", status)
		if status == adapter.ProviderFailed {
			if _, err := u.provider.PollResult(ctx, requestID); err != nil {
				reason = err.Error()
			}
		}
		item.Action, item.Detail = "failed", reason
		if err := resume(Outcome{Reason: reason}); err != nil {
			item.Action, item.Detail = "error", err.Error()
		}
		return item
	}
}

func (u *RecoveryUseCase) giveUp(item RecoveryItem, reason string, fail func(string) error) RecoveryItem {
	item.Action, item.Detail = "failed", reason
	if err := fail(reason); err != nil {
		item.Action, item.Detail = "error", err.Error()
	}
	return item
}

// permanentPollError reports a provider answer that no later poll can change,
// such as a 404 for an expired request id.
func permanentPollError(err error) bool {
	var sc httpx.HTTPStatusCoder
	if !errors.As(err, &sc) {
		return false
	}
	return sc.HTTPStatusCode() >= 400 && !httpx.IsRetryableHTTPStatus(sc.HTTPStatusCode())
}
