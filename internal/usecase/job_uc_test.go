//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
)

func farFuture() time.Time { return time.Now().Add(24 * time.Hour) }

func TestJobUseCase_Legacy(t *testing.T) {
	t.Run("should submit a legacy face swap and finish it from a webhook", func(t *testing.T) {
		// Arrange
		e := newTestEnv(t, nil)
		ctx := context.Background()

		// Act
		created, err := e.jobsUC.CreateJob(ctx, CreateJobInput{SourceVideoURL: storageBase + "src.mp4", ReferenceImageURL: "https://cdn.test/ref.jpg"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		werr := e.router.HandleWebhook(ctx, WebhookEvent{
			JobID: created.Job.ID, RequestID: "req-1", Status: adapter.ProviderCompleted, ArtifactURL: "https://provider.test/o.mp4",
		})

		// Assert
		if created.Job.ProviderRequestID != "req-1" || created.Job.Status != model.JobStatusProcessing {
			t.Fatalf("created = %+v", created.Job)
		}
		if werr != nil {
			t.Fatalf("webhook: %v", werr)
		}
		j, err := e.jobsUC.GetJob(ctx, created.Job.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if j.Status != model.JobStatusCompleted || j.OutputURL == "" {
			t.Fatalf("job = %s %q", j.Status, j.OutputURL)
		}
	})

	t.Run("should fail the job when the provider rejects the submission", func(t *testing.T) {
		e := newTestEnv(t, nil)
		e.provider.SubmitErr = errors.New("quota exceeded")

		created, err := e.jobsUC.CreateJob(context.Background(), CreateJobInput{SourceVideoURL: storageBase + "src.mp4", ReferenceImageURL: "https://cdn.test/ref.jpg"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.Job.Status != model.JobStatusFailed {
			t.Fatalf("status = %s", created.Job.Status)
		}
	})

	t.Run("should require a reference image", func(t *testing.T) {
		e := newTestEnv(t, nil)
		_, err := e.jobsUC.CreateJob(context.Background(), CreateJobInput{SourceVideoURL: storageBase + "src.mp4"})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestJobUseCase_Regenerate(t *testing.T) {
	t.Run("should queue a new job and leave the original untouched", func(t *testing.T) {
		// Arrange
		e := newTestEnv(t, nil)
		ctx := context.Background()
		created, err := e.jobsUC.CreateJob(ctx, CreateJobInput{Name: "first", Steps: []model.Step{overlay("x")}, SourceVideoURL: storageBase + "src.mp4"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		orig := e.mustJob(t, created.Pipeline.ID)

		// Act
		next, err := e.jobsUC.Regenerate(ctx, orig.ID)

		// Assert
		if err != nil {
			t.Fatalf("regenerate: %v", err)
		}
		if next.ID == orig.ID || next.RegeneratedFrom == nil || *next.RegeneratedFrom != orig.ID {
			t.Fatalf("next = %+v", next)
		}
		if got := e.mustJob(t, next.ID); got.Status != model.JobStatusCompleted {
			t.Fatalf("regenerated status = %s", got.Status)
		}
		again := e.mustJob(t, orig.ID)
		if again.UpdatedAt != orig.UpdatedAt || again.OutputURL != orig.OutputURL {
			t.Fatal("original job changed")
		}
	})

	t.Run("should refuse a job that is still running", func(t *testing.T) {
		e := newTestEnv(t, &deferredTasks{})
		created, err := e.jobsUC.CreateJob(context.Background(), CreateJobInput{Steps: []model.Step{overlay("x")}, SourceVideoURL: storageBase + "src.mp4"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := e.jobsUC.Regenerate(context.Background(), created.Pipeline.ID); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestJobUseCase_RequeueStale(t *testing.T) {
	t.Run("should hand queued jobs back to the pool", func(t *testing.T) {
		// Arrange
		tasks := &deferredTasks{}
		e := newTestEnv(t, tasks)
		ctx := context.Background()
		created, err := e.jobsUC.CreateJob(ctx, CreateJobInput{Steps: []model.Step{overlay("x")}, SourceVideoURL: storageBase + "src.mp4"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		tasks.tasks = nil // the pool dropped the first submission

		// Act
		n, err := e.jobsUC.RequeueStale(ctx, -time.Minute, 10)
		tasks.drain(t)

		// Assert
		if err != nil || n != 1 {
			t.Fatalf("requeued = %d err = %v", n, err)
		}
		if j := e.mustJob(t, created.Pipeline.ID); j.Status != model.JobStatusCompleted {
			t.Fatalf("status = %s", j.Status)
		}
	})

	t.Run("should stop quietly when the pool is full", func(t *testing.T) {
		tasks := &inlineTasks{Full: true}
		e := newTestEnv(t, tasks)
		if _, err := e.jobsUC.CreateJob(context.Background(), CreateJobInput{Steps: []model.Step{overlay("x")}, SourceVideoURL: storageBase + "src.mp4"}); err != nil {
			t.Fatalf("create: %v", err)
		}

		n, err := e.jobsUC.RequeueStale(context.Background(), -time.Minute, 10)
		if err != nil || n != 0 {
			t.Fatalf("requeued = %d err = %v", n, err)
		}
	})

	t.Run("should surface a full pool on an operator re-kick", func(t *testing.T) {
		tasks := &inlineTasks{Full: true}
		e := newTestEnv(t, tasks)
		created, err := e.jobsUC.CreateJob(context.Background(), CreateJobInput{Steps: []model.Step{overlay("x")}, SourceVideoURL: storageBase + "src.mp4"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		if _, err := e.jobsUC.RunPipeline(context.Background(), created.Pipeline.ID); !errors.Is(err, domain.ErrQueueFull) {
			t.Fatalf("err = %v", err)
		}
	})
}
