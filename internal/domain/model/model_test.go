//go:build !integration

package model

import (
	"encoding/json"
	"errors"
	"testing"

	"mediaflow/internal/domain"
)

func TestStep_JSON(t *testing.T) {
	t.Run("should decode a tagged step config", func(t *testing.T) {
		raw := `{"id":"s1","type":"text_overlay","config":{"text":"hello","position":"top"}}`

		var s Step
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}

		if !s.Enabled {
			t.Error("expected a step without an enabled flag to be enabled")
		}
		cfg, ok := s.Config.(TextOverlayConfig)
		if !ok {
			t.Fatalf("expected TextOverlayConfig, got %T", s.Config)
		}
		if cfg.Text != "hello" || cfg.Position != "top" {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("should keep an explicit disabled flag through a round trip", func(t *testing.T) {
		in := Step{ID: "a", Kind: StepAudioMix, Enabled: false, Config: AudioMixConfig{AudioURL: "https://x/a.mp3"}}
		b, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out Step
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if out.Enabled {
			t.Error("expected step to stay disabled")
		}
		if out.Config.(AudioMixConfig).AudioURL != "https://x/a.mp3" {
			t.Errorf("config lost: %+v", out.Config)
		}
	})

	t.Run("should reject an unknown step type", func(t *testing.T) {
		var s Step
		err := json.Unmarshal([]byte(`{"id":"x","type":"teleport"}`), &s)
		if !errors.Is(err, domain.ErrUnknownStepKind) {
			t.Fatalf("expected ErrUnknownStepKind, got %v", err)
		}
	})
}

func TestValidateSteps(t *testing.T) {
	overlay := Step{ID: "o", Kind: StepTextOverlay, Enabled: true, Config: TextOverlayConfig{Text: "hi"}}
	textGen := Step{ID: "g", Kind: StepGenerateVideo, Enabled: true, Config: GenerateVideoConfig{Mode: GenerateFromText, Prompt: "a cat"}}

	t.Run("should reject a pipeline with no enabled steps", func(t *testing.T) {
		off := overlay
		off.Enabled = false
		err := ValidateSteps([]Step{off}, "https://x/in.mp4")
		if !errors.Is(err, domain.ErrNoEnabledSteps) {
			t.Fatalf("expected ErrNoEnabledSteps, got %v", err)
		}
	})

	t.Run("should require a source when the first enabled step needs input", func(t *testing.T) {
		err := ValidateSteps([]Step{overlay}, "")
		if !errors.Is(err, domain.ErrSourceRequired) {
			t.Fatalf("expected ErrSourceRequired, got %v", err)
		}
	})

	t.Run("should not require a source for text generation first", func(t *testing.T) {
		if err := ValidateSteps([]Step{textGen, overlay}, ""); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("should judge the first enabled step, not the first step", func(t *testing.T) {
		off := textGen
		off.Enabled = false
		err := ValidateSteps([]Step{off, overlay}, "")
		if !errors.Is(err, domain.ErrSourceRequired) {
			t.Fatalf("expected ErrSourceRequired, got %v", err)
		}
	})
}

func TestAggregateBatchStatus(t *testing.T) {
	cases := []struct {
		total, completed, failed int
		want                     BatchStatus
	}{
		{0, 0, 0, BatchStatusPending},
		{5, 0, 0, BatchStatusProcessing},
		{5, 3, 1, BatchStatusProcessing},
		{5, 5, 0, BatchStatusCompleted},
		{5, 0, 5, BatchStatusFailed},
		{5, 3, 2, BatchStatusPartial},
	}
	for _, c := range cases {
		if got := AggregateBatchStatus(c.total, c.completed, c.failed); got != c.want {
			t.Errorf("AggregateBatchStatus(%d,%d,%d) = %s, want %s", c.total, c.completed, c.failed, got, c.want)
		}
	}
}

func TestPipelineJob_Regenerate(t *testing.T) {
	steps := []Step{{Kind: StepTextOverlay, Enabled: true, Config: TextOverlayConfig{Text: "hi"}}}
	job, err := NewPipelineJob("clip", steps, "https://x/in.mp4")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	t.Run("should refuse to regenerate a job that is still running", func(t *testing.T) {
		if _, err := job.Regenerate(); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should create a new queued job pointing at the old one", func(t *testing.T) {
		job.Status = JobStatusFailed
		next, err := job.Regenerate()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if next.ID == job.ID {
			t.Error("expected a new id")
		}
		if next.RegeneratedFrom == nil || *next.RegeneratedFrom != job.ID {
			t.Errorf("expected lineage to %s, got %v", job.ID, next.RegeneratedFrom)
		}
		if next.Status != JobStatusQueued || next.CurrentStep != 0 {
			t.Errorf("expected fresh queued job, got %s at step %d", next.Status, next.CurrentStep)
		}
		if job.Status != JobStatusFailed {
			t.Error("expected the old job to stay untouched")
		}
	})
}

func TestParsePostStatus(t *testing.T) {
	if ParsePostStatus("success") != PostStatusPublished {
		t.Error("success should map to published")
	}
	if ParsePostStatus("queued_somewhere") != PostStatusPublishing {
		t.Error("unknown statuses should default to publishing")
	}
}
