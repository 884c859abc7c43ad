package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/logging"
)

type CreateJobInput struct {
	Name              string                  `json:"name,omitempty"`
	Steps             []model.Step            `json:"steps,omitempty"`
	SourceVideoURL    string                  `json:"source_video_url,omitempty"`
	ReferenceImageURL string                  `json:"reference_image_url,omitempty"`
	RecipientID       string                  `json:"recipient_id,omitempty"`
	Publish           *model.PublishOverrides `json:"publish,omitempty"`
}

// CreatedJob holds exactly one of Pipeline or Job.
type CreatedJob struct {
	Pipeline *model.PipelineJob `json:"pipeline_job,omitempty"`
	Job      *model.Job         `json:"job,omitempty"`
}

// JobUseCase is the creation and inspection surface for single jobs.
type JobUseCase struct {
	pjobs      repository.PipelineJobRepository
	jobs       repository.JobRepository
	recipients repository.RecipientRepository
	sources    SourceResolver
	exec       *StepExecutor
	runner     *PipelineRunner
	tasks      TaskRunner
	log        *zerolog.Logger
}

func NewJobUseCase(
	pjobs repository.PipelineJobRepository,
	jobs repository.JobRepository,
	recipients repository.RecipientRepository,
	sources SourceResolver,
	exec *StepExecutor,
	runner *PipelineRunner,
	tasks TaskRunner,
	logger *zerolog.Logger,
) *JobUseCase {
	l := logger.With().Str("component", "job_usecase").Logger()
	return &JobUseCase{
		pjobs: pjobs, jobs: jobs, recipients: recipients, sources: sources,
		exec: exec, runner: runner, tasks: tasks, log: &l,
	}
}

// CreateJob creates a pipeline job when steps are given and a legacy face
// swap job otherwise.
func (u *JobUseCase) CreateJob(ctx context.Context, in CreateJobInput) (*CreatedJob, error) {
	if len(in.Steps) == 0 {
		j, err := u.createLegacy(ctx, in)
		if err != nil {
			return nil, err
		}
		return &CreatedJob{Job: j}, nil
	}

	steps := cloneSteps(in.Steps)
	model.AssignStepIDs(steps)
	if err := model.ValidateSteps(steps, in.SourceVideoURL); err != nil {
		return nil, err
	}
	for _, s := range model.EnabledSteps(steps) {
		if s.Kind.FanOut() {
			return nil, fmt.Errorf("%w: use the batch endpoint for %s", domain.ErrUnresolvedFanOut, s.Kind)
		}
	}
	source, err := u.sources.Resolve(ctx, in.SourceVideoURL)
	if err != nil {
		return nil, err
	}
	j, err := model.NewPipelineJob(in.Name, steps, source)
	if err != nil {
		return nil, err
	}
	if in.RecipientID != "" {
		if _, err := u.recipients.FindByID(ctx, repository.NoTX, in.RecipientID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: recipient %q not found", domain.ErrInvalidArgument, in.RecipientID)
			}
			return nil, err
		}
		rid := in.RecipientID
		j.RecipientID = &rid
	}
	if in.Publish != nil {
		if !in.Publish.Mode.Valid() {
			return nil, fmt.Errorf("%w: publish mode %q", domain.ErrInvalidArgument, in.Publish.Mode)
		}
		p := *in.Publish
		j.Publish = &p
	}
	if err := u.pjobs.Create(ctx, repository.NoTX, j); err != nil {
		return nil, err
	}
	u.log.Info().Str("job_id", j.ID).Int("steps", j.TotalSteps).Str("status", string(j.Status)).Msg("pipeline job created")
	u.schedule(j.ID)
	return &CreatedJob{Pipeline: j}, nil
}

// createLegacy stores the job and submits it to the provider in the request.
func (u *JobUseCase) createLegacy(ctx context.Context, in CreateJobInput) (*model.Job, error) {
	if strings.TrimSpace(in.SourceVideoURL) == "" {
		return nil, domain.ErrSourceRequired
	}
	if strings.TrimSpace(in.ReferenceImageURL) == "" {
		return nil, fmt.Errorf("%w: reference_image_url is required", domain.ErrInvalidArgument)
	}
	source, err := u.sources.Resolve(ctx, in.SourceVideoURL)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	j := &model.Job{
		ID:                uuid.NewString(),
		SourceURL:         source,
		ReferenceImageURL: in.ReferenceImageURL,
		Status:            model.JobStatusQueued,
		Progress:          "Queued",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := u.jobs.Create(ctx, repository.NoTX, j); err != nil {
		return nil, err
	}
	ctx = logging.WithJobID(ctx, j.ID)
	log := logging.With(ctx, u.log)

	if won, err := u.jobs.MarkProcessing(ctx, repository.NoTX, j.ID); err != nil || !won {
		return j, err
	}
	j.Status = model.JobStatusProcessing

	requestID, err := u.exec.SubmitFaceSwap(ctx, j)
	if err != nil {
		reason := err.Error()
		if _, ferr := u.jobs.Fail(context.WithoutCancel(ctx), repository.NoTX, j.ID, reason); ferr != nil {
			return nil, ferr
		}
		j.Status, j.ErrorMessage = model.JobStatusFailed, reason
		log.Warn().Err(err).Str("status", string(j.Status)).Msg("legacy submit failed")
		return j, nil
	}
	progress := "Face swap: submitted to provider, awaiting result"
	if _, err := u.jobs.SetProviderRequest(ctx, repository.NoTX, j.ID, requestID, progress); err != nil {
		return nil, err
	}
	j.ProviderRequestID, j.Progress = requestID, progress
	log.Info().Str("request_id", requestID).Str("status", string(j.Status)).Msg("legacy job submitted")
	return j, nil
}

func (u *JobUseCase) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return u.jobs.FindByID(ctx, repository.NoTX, id)
}

func (u *JobUseCase) GetPipelineJob(ctx context.Context, id string) (*model.PipelineJob, error) {
	return u.pjobs.FindByID(ctx, repository.NoTX, id)
}

// RunPipeline re-kicks a queued job. Jobs in any other state are returned
// unchanged.
func (u *JobUseCase) RunPipeline(ctx context.Context, id string) (*model.PipelineJob, error) {
	j, err := u.pjobs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if j.Status == model.JobStatusQueued {
		if err := u.tasks.Go("pipeline.run", func(ctx context.Context) error { return u.runner.Run(ctx, id) }); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// Regenerate queues a copy of a terminal job. The original is not modified.
func (u *JobUseCase) Regenerate(ctx context.Context, id string) (*model.PipelineJob, error) {
	old, err := u.pjobs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	next, err := old.Regenerate()
	if err != nil {
		return nil, err
	}
	if err := u.pjobs.Create(ctx, repository.NoTX, next); err != nil {
		return nil, err
	}
	u.log.Info().Str("job_id", next.ID).Str("regenerated_from", id).Msg("pipeline job regenerated")
	u.schedule(next.ID)
	return next, nil
}

func (u *JobUseCase) schedule(id string) {
	if err := u.tasks.Go("pipeline.run", func(ctx context.Context) error { return u.runner.Run(ctx, id) }); err != nil {
		u.log.Warn().Err(err).Str("job_id", id).Msg("job not scheduled, dispatcher will pick it up")
	}
}

// RequeueStale hands queued jobs older than age back to the pool. It returns
// how many were scheduled and stops at the first full-queue rejection.
func (u *JobUseCase) RequeueStale(ctx context.Context, age time.Duration, limit int) (int, error) {
	jobs, err := u.pjobs.ListQueuedOlderThan(ctx, repository.NoTX, time.Now().Add(-age), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range jobs {
		id := j.ID
		if err := u.tasks.Go("pipeline.run", func(ctx context.Context) error { return u.runner.Run(ctx, id) }); err != nil {
			if errors.Is(err, domain.ErrQueueFull) {
				break
			}
			return n, err
		}
		n++
	}
	if n > 0 {
		u.log.Info().Int("requeued", n).Int("found", len(jobs)).Msg("stale queued jobs requeued")
	}
	return n, nil
}
