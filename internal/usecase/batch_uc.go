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
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/domain/ports/repository"
)

type MasterInput struct {
	Caption     string            `json:"caption,omitempty"`
	PublishMode model.PublishMode `json:"publish_mode,omitempty"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
}

type CreateBatchInput struct {
	Name           string
	Template       []model.Step
	SourceVideoURL string
	// RecipientIDs extends the fan-out step's own model list.
	RecipientIDs []string
	Master       *MasterInput
}

type CreateBatchResult struct {
	Batch *model.Batch         `json:"batch"`
	Jobs  []*model.PipelineJob `json:"jobs"`
}

// child is one resolved fan-out target.
type child struct {
	recipient *model.Recipient
	image     string
}

type BatchCoordinator struct {
	tx         repository.TransactionManager
	batches    repository.BatchRepository
	pjobs      repository.PipelineJobRepository
	jobs       repository.JobRepository
	recipients repository.RecipientRepository
	sources    SourceResolver
	runner     *PipelineRunner
	tasks      TaskRunner
	cache      adapter.BatchCache
	log        *zerolog.Logger
}

func NewBatchCoordinator(
	tx repository.TransactionManager,
	batches repository.BatchRepository,
	pjobs repository.PipelineJobRepository,
	jobs repository.JobRepository,
	recipients repository.RecipientRepository,
	sources SourceResolver,
	runner *PipelineRunner,
	tasks TaskRunner,
	cache adapter.BatchCache,
	logger *zerolog.Logger,
) *BatchCoordinator {
	l := logger.With().Str("component", "batch_coordinator").Logger()
	return &BatchCoordinator{
		tx: tx, batches: batches, pjobs: pjobs, jobs: jobs, recipients: recipients,
		sources: sources, runner: runner, tasks: tasks, cache: cache, log: &l,
	}
}

// CreateBatch fans the template out into one child job per recipient. The
// shared source video is resolved once here, not per child.
func (c *BatchCoordinator) CreateBatch(ctx context.Context, in CreateBatchInput) (*CreateBatchResult, error) {
	template := cloneSteps(in.Template)
	model.AssignStepIDs(template)
	if err := model.ValidateSteps(template, in.SourceVideoURL); err != nil {
		return nil, err
	}
	fanIdx, fan, err := fanOutStep(template)
	if err != nil {
		return nil, err
	}
	if in.Master != nil && !in.Master.PublishMode.Valid() {
		return nil, fmt.Errorf("%w: publish mode %q", domain.ErrInvalidArgument, in.Master.PublishMode)
	}

	children, err := c.resolveChildren(ctx, fan, in)
	if err != nil {
		return nil, err
	}

	source, err := c.sources.Resolve(ctx, in.SourceVideoURL)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "batch " + now.Format("2006-01-02 15:04")
	}
	batch := &model.Batch{
		ID:             uuid.NewString(),
		Name:           name,
		Status:         model.BatchStatusPending,
		TotalJobs:      len(children),
		Template:       template,
		SourceVideoURL: source,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.Master != nil {
		master, err := c.snapshotMaster(ctx, in.Master, children)
		if err != nil {
			return nil, err
		}
		batch.IsMaster = true
		batch.Master = master
	}

	jobs := make([]*model.PipelineJob, 0, len(children))
	for _, ch := range children {
		steps := cloneSteps(template)
		cfg := model.FaceSwapConfig{ReferenceImageURL: ch.image}
		jobName := name
		if ch.recipient != nil {
			cfg.ModelID = ch.recipient.ID
			jobName = name + " - " + ch.recipient.Name
		}
		steps[fanIdx].Kind = model.StepFaceSwap
		steps[fanIdx].Config = cfg
		j, err := model.NewPipelineJob(jobName, steps, source)
		if err != nil {
			return nil, err
		}
		j.BatchID = &batch.ID
		if ch.recipient != nil {
			rid := ch.recipient.ID
			j.RecipientID = &rid
		}
		jobs = append(jobs, j)
	}

	err = c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := c.batches.Create(ctx, tx, batch); err != nil {
			return err
		}
		for _, j := range jobs {
			if err := c.pjobs.Create(ctx, tx, j); err != nil {
				return err
			}
		}
		return c.batches.SetStatus(ctx, tx, batch.ID, model.BatchStatusProcessing)
	})
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	batch.Status = model.BatchStatusProcessing
	c.log.Info().Str("batch_id", batch.ID).Int("jobs", len(jobs)).Bool("master", batch.IsMaster).Msg("batch created")

	// children are independent; a full queue leaves them for the dispatcher
	for _, j := range jobs {
		id := j.ID
		if err := c.tasks.Go("pipeline.run", func(ctx context.Context) error { return c.runner.Run(ctx, id) }); err != nil {
			c.log.Warn().Err(err).Str("job_id", id).Str("batch_id", batch.ID).Msg("child not scheduled, dispatcher will pick it up")
		}
	}
	return &CreateBatchResult{Batch: batch, Jobs: jobs}, nil
}

func fanOutStep(steps []model.Step) (int, model.BatchFaceSwapConfig, error) {
	idx := -1
	var fan model.BatchFaceSwapConfig
	for i, s := range steps {
		if !s.Enabled || !s.Kind.FanOut() {
			continue
		}
		if idx >= 0 {
			return 0, fan, fmt.Errorf("%w: only one fan-out step is allowed", domain.ErrInvalidArgument)
		}
		idx = i
		fan, _ = s.Config.(model.BatchFaceSwapConfig)
	}
	if idx < 0 {
		return 0, fan, fmt.Errorf("%w: batch template needs a %s step", domain.ErrInvalidArgument, model.StepBatchFaceSwap)
	}
	return idx, fan, nil
}

func (c *BatchCoordinator) resolveChildren(ctx context.Context, fan model.BatchFaceSwapConfig, in CreateBatchInput) ([]child, error) {
	ids := dedupe(append(append([]string{}, fan.ModelIDs...), in.RecipientIDs...))
	out := make([]child, 0, len(ids)+len(fan.ImageURLs))
	for _, id := range ids {
		r, err := c.recipients.FindByID(ctx, repository.NoTX, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: recipient %q not found", domain.ErrInvalidArgument, id)
			}
			return nil, err
		}
		if strings.TrimSpace(r.ReferenceImageURL) == "" {
			return nil, fmt.Errorf("%w: recipient %q has no reference image", domain.ErrInvalidArgument, id)
		}
		out = append(out, child{recipient: r, image: r.ReferenceImageURL})
	}
	if in.Master == nil {
		for _, u := range dedupe(fan.ImageURLs) {
			out = append(out, child{image: u})
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrRecipientsRequired
	}
	return out, nil
}

// snapshotMaster captures each recipient's linked accounts now, so later
// account changes do not alter an in-flight batch.
func (c *BatchCoordinator) snapshotMaster(ctx context.Context, in *MasterInput, children []child) (*model.MasterConfig, error) {
	m := &model.MasterConfig{
		Caption:     in.Caption,
		PublishMode: in.PublishMode,
		ScheduledAt: in.ScheduledAt,
		Timezone:    in.Timezone,
		Recipients:  make([]model.MasterRecipient, 0, len(children)),
	}
	for _, ch := range children {
		accounts, err := c.recipients.ListAccounts(ctx, repository.NoTX, ch.recipient.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(accounts))
		for _, a := range accounts {
			ids = append(ids, a.ID)
		}
		m.Recipients = append(m.Recipients, model.MasterRecipient{
			RecipientID:       ch.recipient.ID,
			Name:              ch.recipient.Name,
			ReferenceImageURL: ch.image,
			AccountIDs:        ids,
		})
	}
	return m, nil
}

// GetBatch returns the batch with its children, served from the cache when fresh.
func (c *BatchCoordinator) GetBatch(ctx context.Context, id string) (*adapter.BatchDetails, error) {
	if c.cache != nil {
		if d, ok := c.cache.Get(ctx, id); ok {
			return d, nil
		}
	}
	b, err := c.batches.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	jobs, err := c.pjobs.ListByBatch(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	d := &adapter.BatchDetails{Batch: b, Progress: b.Progress(), Jobs: jobs}
	if c.cache != nil {
		if err := c.cache.Set(ctx, id, d); err != nil {
			c.log.Warn().Err(err).Str("batch_id", id).Msg("batch cache set failed")
		}
	}
	return d, nil
}

// DeleteBatch removes the batch and detaches its children, which are kept.
func (c *BatchCoordinator) DeleteBatch(ctx context.Context, id string) error {
	err := c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := c.batches.FindByID(ctx, tx, id); err != nil {
			return err
		}
		if err := c.pjobs.DetachBatch(ctx, tx, id); err != nil {
			return err
		}
		if err := c.jobs.DetachBatch(ctx, tx, id); err != nil {
			return err
		}
		return c.batches.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	if c.cache != nil {
		_ = c.cache.Invalidate(ctx, id)
	}
	c.log.Info().Str("batch_id", id).Msg("batch deleted")
	return nil
}

func cloneSteps(in []model.Step) []model.Step {
	out := make([]model.Step, len(in))
	copy(out, in)
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
