package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/logging"
)

// Outcome is what the provider reported for one request.
type Outcome struct {
	Success     bool
	ArtifactURL string
	Reason      string
}

// WebhookEvent is a provider callback after token verification. JobID comes
// from the signed token, never from the body.
type WebhookEvent struct {
	JobID       string
	RequestID   string
	Status      adapter.ProviderStatus
	ArtifactURL string
	Error       string
}

// CompletionRouter resumes jobs parked on the provider. Webhooks and the
// recovery sweep both land in Resume; the store decides which one wins.
type CompletionRouter struct {
	pjobs    repository.PipelineJobRepository
	jobs     repository.JobRepository
	provider adapter.GenerationProvider
	exec     *StepExecutor
	runner   *PipelineRunner
	tracker  *BatchTracker
	tasks    TaskRunner
	log      *zerolog.Logger
}

func NewCompletionRouter(
	pjobs repository.PipelineJobRepository,
	jobs repository.JobRepository,
	provider adapter.GenerationProvider,
	exec *StepExecutor,
	runner *PipelineRunner,
	tracker *BatchTracker,
	tasks TaskRunner,
	logger *zerolog.Logger,
) *CompletionRouter {
	l := logger.With().Str("component", "completion_router").Logger()
	return &CompletionRouter{
		pjobs: pjobs, jobs: jobs, provider: provider, exec: exec,
		runner: runner, tracker: tracker, tasks: tasks, log: &l,
	}
}

// HandleWebhook acknowledges a callback and schedules the resume. It returns
// domain.ErrNotFound while the handle is not yet persisted so the provider
// retries the delivery.
func (r *CompletionRouter) HandleWebhook(ctx context.Context, ev WebhookEvent) error {
	if ev.RequestID == "" {
		return fmt.Errorf("%w: request_id is required", domain.ErrInvalidArgument)
	}
	var out Outcome
	switch ev.Status {
	case adapter.ProviderQueued, adapter.ProviderRunning:
		r.log.Debug().Str("request_id", ev.RequestID).Str("status", string(ev.Status)).Msg("webhook progress ignored")
		return nil
	case adapter.ProviderCompleted:
		out = Outcome{Success: true, ArtifactURL: ev.ArtifactURL}
	default:
		reason := ev.Error
		if reason == "" {
			reason = fmt.Sprintf("provider reported %s", ev.Status)
		}
		out = Outcome{Reason: reason}
	}

	ownerID, legacy, err := r.owner(ctx, ev.RequestID)
	if err != nil {
		return err
	}
	if ownerID != ev.JobID {
		r.log.Warn().Str("request_id", ev.RequestID).Str("token_job", ev.JobID).Str("job_id", ownerID).Msg("webhook token does not match job")
		return domain.ErrUnauthorized
	}

	name := "pipeline.resume"
	task := func(ctx context.Context) error { return r.Resume(ctx, ownerID, ev.RequestID, out) }
	if legacy {
		name = "job.resume"
		task = func(ctx context.Context) error { return r.ResumeLegacy(ctx, ownerID, ev.RequestID, out) }
	}
	return r.tasks.Go(name, task)
}

func (r *CompletionRouter) owner(ctx context.Context, requestID string) (string, bool, error) {
	pj, err := r.pjobs.FindByProviderRequestID(ctx, repository.NoTX, requestID)
	if err == nil {
		return pj.ID, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", false, err
	}
	j, err := r.jobs.FindByProviderRequestID(ctx, repository.NoTX, requestID)
	if err != nil {
		return "", false, err
	}
	return j.ID, true, nil
}

// Resume applies a provider outcome to a pipeline job. A duplicate or stale
// delivery is a no-op.
func (r *CompletionRouter) Resume(ctx context.Context, jobID, requestID string, out Outcome) error {
	ctx = logging.WithJobID(ctx, jobID)
	log := logging.With(ctx, r.log)

	job, err := r.pjobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() || job.ProviderRequestID != requestID {
		log.Debug().Str("request_id", requestID).Str("status", string(job.Status)).Msg("resume skipped: stale delivery")
		return nil
	}
	won, err := r.pjobs.ClaimProviderResult(ctx, repository.NoTX, jobID, requestID)
	if err != nil {
		return err
	}
	if !won {
		log.Debug().Str("request_id", requestID).Msg("resume skipped: result already claimed")
		return nil
	}
	job.ProviderRequestID = ""

	steps := job.EnabledSteps()
	idx := job.CurrentStep
	if idx >= len(steps) {
		return r.runner.Fail(ctx, job, fmt.Sprintf("provider result for step %d beyond pipeline end", idx+1))
	}
	step := steps[idx]
	label := fmt.Sprintf("step %d/%d (%s)", idx+1, job.TotalSteps, step.Kind.Label())
	if !out.Success {
		return r.runner.Fail(ctx, job, label+": "+out.Reason)
	}

	artifact, err := r.artifact(ctx, requestID, out)
	if err == nil {
		artifact, err = r.exec.StoreProviderArtifact(ctx, ProviderArtifactKey(job.ID, step.ID, requestID), artifact)
	}
	if err != nil {
		log.Warn().Err(err).Int("step", idx).Msg("provider artifact not stored")
		return r.runner.Fail(ctx, job, fmt.Sprintf("%s: %v", label, err))
	}

	ok, err := r.runner.advance(ctx, job, idx, step, artifact)
	if err != nil || !ok {
		return err
	}
	return r.runner.Continue(ctx, job)
}

// ResumeLegacy applies a provider outcome to a single-step legacy job.
func (r *CompletionRouter) ResumeLegacy(ctx context.Context, jobID, requestID string, out Outcome) error {
	ctx = logging.WithJobID(ctx, jobID)
	log := logging.With(ctx, r.log)

	job, err := r.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() || job.ProviderRequestID != requestID {
		log.Debug().Str("request_id", requestID).Str("status", string(job.Status)).Msg("legacy resume skipped: stale delivery")
		return nil
	}
	won, err := r.jobs.ClaimProviderResult(ctx, repository.NoTX, jobID, requestID)
	if err != nil || !won {
		return err
	}

	status := model.JobStatusFailed
	if out.Success {
		artifact, err := r.artifact(ctx, requestID, out)
		if err == nil {
			artifact, err = r.exec.StoreProviderArtifact(ctx, LegacyArtifactKey(job.ID, requestID), artifact)
		}
		if err != nil {
			out = Outcome{Reason: err.Error()}
		} else {
			status = model.JobStatusCompleted
			if won, err = r.jobs.Complete(ctx, repository.NoTX, job.ID, artifact); err != nil {
				return err
			}
			log.Info().Str("status", string(status)).Str("output", artifact).Msg("job completed")
		}
	}
	if status == model.JobStatusFailed {
		return r.failLegacy(ctx, job, out.Reason)
	}
	return r.notifyLegacy(ctx, job, won, status)
}

func (r *CompletionRouter) failLegacy(ctx context.Context, job *model.Job, reason string) error {
	won, err := r.jobs.Fail(context.WithoutCancel(ctx), repository.NoTX, job.ID, reason)
	if err != nil {
		return err
	}
	if won {
		logging.With(logging.WithJobID(ctx, job.ID), r.log).Info().
			Str("status", string(model.JobStatusFailed)).Str("reason", reason).Msg("job failed")
	}
	return r.notifyLegacy(ctx, job, won, model.JobStatusFailed)
}

func (r *CompletionRouter) notifyLegacy(ctx context.Context, job *model.Job, won bool, status model.JobStatus) error {
	if !won || job.BatchID == nil || r.tracker == nil {
		return nil
	}
	return r.tracker.OnChildTerminal(context.WithoutCancel(ctx), *job.BatchID, status)
}

// artifact falls back to polling when the callback carried no url.
func (r *CompletionRouter) artifact(ctx context.Context, requestID string, out Outcome) (string, error) {
	if out.ArtifactURL != "" {
		return out.ArtifactURL, nil
	}
	return r.provider.PollResult(ctx, requestID)
}
