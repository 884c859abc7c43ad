package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/logging"
)

// PipelineRunner drives one pipeline job through its enabled steps. Every
// mutation is a guarded store update; when a guard is lost another worker
// owns the job and the runner stops without error.
type PipelineRunner struct {
	jobs    repository.PipelineJobRepository
	exec    *StepExecutor
	tracker *BatchTracker
	log     *zerolog.Logger
}

func NewPipelineRunner(jobs repository.PipelineJobRepository, exec *StepExecutor, tracker *BatchTracker, logger *zerolog.Logger) *PipelineRunner {
	l := logger.With().Str("component", "pipeline_runner").Logger()
	return &PipelineRunner{jobs: jobs, exec: exec, tracker: tracker, log: &l}
}

// Run starts a queued job. Terminal jobs, jobs parked on the provider and jobs
// another worker already started are left alone.
func (r *PipelineRunner) Run(ctx context.Context, id string) error {
	ctx = logging.WithJobID(ctx, id)
	log := logging.With(ctx, r.log)

	job, err := r.jobs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return err
	}
	switch {
	case job.Status.IsTerminal():
		log.Debug().Str("status", string(job.Status)).Msg("run skipped: terminal")
		return nil
	case job.AwaitingProvider():
		log.Debug().Str("request_id", job.ProviderRequestID).Msg("run skipped: awaiting provider")
		return nil
	case job.Status != model.JobStatusQueued:
		log.Debug().Str("status", string(job.Status)).Msg("run skipped: already started")
		return nil
	}

	won, err := r.jobs.MarkProcessing(ctx, repository.NoTX, id)
	if err != nil {
		return err
	}
	if !won {
		log.Debug().Msg("run skipped: lost start race")
		return nil
	}
	job.Status = model.JobStatusProcessing
	log.Info().Str("status", string(job.Status)).Int("steps", job.TotalSteps).Msg("pipeline started")
	return r.Continue(ctx, job)
}

// Continue executes the remaining steps of a processing job from its
// CurrentStep, persisting after each one. job is updated in place.
func (r *PipelineRunner) Continue(ctx context.Context, job *model.PipelineJob) error {
	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, r.log)
	steps := job.EnabledSteps()

	for job.CurrentStep < len(steps) {
		idx := job.CurrentStep
		step := steps[idx]
		out, err := r.exec.Execute(ctx, job, step, job.WorkingArtifact())
		if err != nil {
			log.Warn().Err(err).Int("step", idx).Str("kind", string(step.Kind)).Msg("step failed")
			return r.Fail(ctx, job, fmt.Sprintf("step %d/%d (%s): %v", idx+1, job.TotalSteps, step.Kind.Label(), err))
		}

		if out.Pending() {
			won, err := r.jobs.AwaitProvider(ctx, repository.NoTX, job.ID, idx, out.RequestID,
				job.StepLabel(idx, "submitted to provider, awaiting result"))
			if err != nil {
				return err
			}
			if !won {
				log.Warn().Int("step", idx).Str("request_id", out.RequestID).Msg("lost job while parking on provider")
				return nil
			}
			job.ProviderRequestID = out.RequestID
			log.Info().Int("step", idx).Str("kind", string(step.Kind)).Str("request_id", out.RequestID).
				Str("status", string(job.Status)).Msg("awaiting provider")
			return nil
		}

		if ok, err := r.advance(ctx, job, idx, step, out.ArtifactURL); err != nil || !ok {
			return err
		}
	}
	return r.complete(ctx, job)
}

// advance appends a step result and moves past step idx.
func (r *PipelineRunner) advance(ctx context.Context, job *model.PipelineJob, idx int, step model.Step, output string) (bool, error) {
	results := make([]model.StepResult, len(job.StepResults), len(job.StepResults)+1)
	copy(results, job.StepResults)
	results = append(results, model.StepResult{
		StepID:    step.ID,
		Kind:      step.Kind,
		Label:     step.Kind.Label(),
		OutputURL: output,
	})
	won, err := r.jobs.AdvanceStep(ctx, repository.NoTX, job.ID, idx, results, job.StepLabel(idx, "done"))
	if err != nil {
		return false, err
	}
	if !won {
		logging.With(ctx, r.log).Warn().Int("step", idx).Msg("lost job while advancing")
		return false, nil
	}
	job.StepResults = results
	job.CurrentStep = idx + 1
	job.ProviderRequestID = ""
	logging.With(ctx, r.log).Info().Int("step", idx).Str("kind", string(step.Kind)).
		Str("status", string(job.Status)).Msg("step completed")
	return true, nil
}

func (r *PipelineRunner) complete(ctx context.Context, job *model.PipelineJob) error {
	out := job.WorkingArtifact()
	won, err := r.jobs.Complete(ctx, repository.NoTX, job.ID, out)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	job.Status = model.JobStatusCompleted
	job.OutputURL = out
	logging.With(ctx, r.log).Info().Int("step", job.CurrentStep).Str("status", string(job.Status)).
		Str("output", out).Msg("pipeline completed")
	r.notifyBatch(ctx, job)
	return nil
}

// Fail marks the job failed, keeping its step results. The batch is told only
// when this call made the transition.
func (r *PipelineRunner) Fail(ctx context.Context, job *model.PipelineJob, reason string) error {
	won, err := r.jobs.Fail(context.WithoutCancel(ctx), repository.NoTX, job.ID, reason)
	if err != nil {
		return err
	}
	if !won {
		logging.With(ctx, r.log).Debug().Str("job_id", job.ID).Msg("fail skipped: already terminal")
		return nil
	}
	job.Status = model.JobStatusFailed
	job.ErrorMessage = reason
	logging.With(ctx, r.log).Info().Str("job_id", job.ID).Int("step", job.CurrentStep).
		Str("status", string(job.Status)).Str("reason", reason).Msg("pipeline failed")
	r.notifyBatch(ctx, job)
	return nil
}

func (r *PipelineRunner) notifyBatch(ctx context.Context, job *model.PipelineJob) {
	if job.BatchID == nil || r.tracker == nil {
		return
	}
	if err := r.tracker.OnChildTerminal(context.WithoutCancel(ctx), *job.BatchID, job.Status); err != nil &&
		!errors.Is(err, domain.ErrNotFound) {
		logging.With(ctx, r.log).Error().Err(err).Str("batch_id", *job.BatchID).Msg("batch progress update failed")
	}
}
