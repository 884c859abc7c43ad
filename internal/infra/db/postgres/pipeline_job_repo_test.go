//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
)

func newOverlayJob(t *testing.T) *model.PipelineJob {
	t.Helper()
	steps := []model.Step{
		{Kind: model.StepTextOverlay, Enabled: true, Config: model.TextOverlayConfig{Text: "hello"}},
		{Kind: model.StepFaceSwap, Enabled: true, Config: model.FaceSwapConfig{ReferenceImageURL: "https://cdn/ref.jpg"}},
	}
	j, err := model.NewPipelineJob("two steps", steps, "https://cdn/src.mp4")
	if err != nil {
		t.Fatalf("failed to build job: %v", err)
	}
	return j
}

func TestPipelineJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPipelineJobRepo(testPool)

	t.Run("should round-trip a job with steps and overrides", func(t *testing.T) {
		cleanup(t)
		job := newOverlayJob(t)
		job.Publish = &model.PublishOverrides{Caption: "hi", Mode: model.PublishDraft}
		if err := repo.Create(ctx, nil, job); err != nil {
			t.Fatalf("failed to create job: %v", err)
		}

		got, err := repo.FindByID(ctx, nil, job.ID)
		if err != nil {
			t.Fatalf("failed to find job: %v", err)
		}
		if got.TotalSteps != 2 || len(got.Steps) != 2 {
			t.Errorf("expected 2 steps, got total=%d len=%d", got.TotalSteps, len(got.Steps))
		}
		if cfg, ok := got.Steps[0].Config.(model.TextOverlayConfig); !ok || cfg.Text != "hello" {
			t.Errorf("step config did not survive the round trip: %#v", got.Steps[0].Config)
		}
		if got.Publish == nil || got.Publish.Caption != "hi" {
			t.Errorf("publish overrides lost: %+v", got.Publish)
		}
	})

	t.Run("should let only one caller advance a step", func(t *testing.T) {
		cleanup(t)
		job := newOverlayJob(t)
		_ = repo.Create(ctx, nil, job)
		if ok, err := repo.MarkProcessing(ctx, nil, job.ID); err != nil || !ok {
			t.Fatalf("MarkProcessing = %v, %v", ok, err)
		}
		results := []model.StepResult{{StepID: "step-1", Kind: model.StepTextOverlay, OutputURL: "https://cdn/1.mp4"}}

		first, err := repo.AdvanceStep(ctx, nil, job.ID, 0, results, "Step 2/2: face swap")
		if err != nil || !first {
			t.Fatalf("first advance = %v, %v", first, err)
		}
		second, err := repo.AdvanceStep(ctx, nil, job.ID, 0, results, "Step 2/2: face swap")
		if err != nil {
			t.Fatalf("second advance errored: %v", err)
		}
		if second {
			t.Error("a stale advance must not win")
		}
	})

	t.Run("should claim a provider handle exactly once", func(t *testing.T) {
		cleanup(t)
		job := newOverlayJob(t)
		_ = repo.Create(ctx, nil, job)
		_, _ = repo.MarkProcessing(ctx, nil, job.ID)
		if ok, err := repo.AwaitProvider(ctx, nil, job.ID, 0, "req-1", "waiting"); err != nil || !ok {
			t.Fatalf("AwaitProvider = %v, %v", ok, err)
		}

		found, err := repo.FindByProviderRequestID(ctx, nil, "req-1")
		if err != nil || found.ID != job.ID {
			t.Fatalf("lookup by handle failed: %v", err)
		}
		if ok, _ := repo.ClaimProviderResult(ctx, nil, job.ID, "req-1"); !ok {
			t.Fatal("first claim should win")
		}
		if ok, _ := repo.ClaimProviderResult(ctx, nil, job.ID, "req-1"); ok {
			t.Error("second claim must lose")
		}
	})

	t.Run("should refuse transitions out of a terminal state", func(t *testing.T) {
		cleanup(t)
		job := newOverlayJob(t)
		_ = repo.Create(ctx, nil, job)
		_, _ = repo.MarkProcessing(ctx, nil, job.ID)
		if ok, _ := repo.Fail(ctx, nil, job.ID, "boom"); !ok {
			t.Fatal("fail should win")
		}
		if ok, _ := repo.Complete(ctx, nil, job.ID, "https://cdn/out.mp4"); ok {
			t.Error("complete after fail must not win")
		}
		if _, err := repo.TouchRecovery(ctx, nil, job.ID, "polling"); err != domain.ErrNotFound {
			t.Errorf("expected ErrNotFound touching a failed job, got %v", err)
		}
	})

	t.Run("should list stuck processing jobs", func(t *testing.T) {
		cleanup(t)
		job := newOverlayJob(t)
		_ = repo.Create(ctx, nil, job)
		_, _ = repo.MarkProcessing(ctx, nil, job.ID)

		stuck, err := repo.ListStuck(ctx, nil, time.Now().Add(time.Minute), 10)
		if err != nil {
			t.Fatalf("ListStuck failed: %v", err)
		}
		if len(stuck) != 1 {
			t.Errorf("expected 1 stuck job, got %d", len(stuck))
		}
	})
}
