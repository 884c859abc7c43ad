package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediaflow/internal/domain"
)

type PublishStatus string

const (
	PublishStatusNone     PublishStatus = ""
	PublishStatusPosted   PublishStatus = "posted"
	PublishStatusRejected PublishStatus = "rejected"
)

type PublishMode string

const (
	PublishNow      PublishMode = "now"
	PublishSchedule PublishMode = "schedule"
	PublishDraft    PublishMode = "draft"
)

func (m PublishMode) Valid() bool {
	switch m {
	case "", PublishNow, PublishSchedule, PublishDraft:
		return true
	}
	return false
}

// PublishOverrides are per-job publishing settings that win over batch defaults.
type PublishOverrides struct {
	Caption     string      `json:"caption,omitempty"`
	Mode        PublishMode `json:"mode,omitempty"`
	ScheduledAt *time.Time  `json:"scheduled_at,omitempty"`
	Timezone    string      `json:"timezone,omitempty"`
	AccountIDs  []string    `json:"account_ids,omitempty"`
}

// PipelineJob drives an ordered list of steps against one working artifact.
// CurrentStep indexes the enabled steps and never exceeds TotalSteps.
type PipelineJob struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Steps             []Step            `json:"steps"`
	CurrentStep       int               `json:"current_step"`
	TotalSteps        int               `json:"total_steps"`
	Status            JobStatus         `json:"status"`
	Progress          string            `json:"progress,omitempty"`
	StepResults       []StepResult      `json:"step_results"`
	SourceVideoURL    string            `json:"source_video_url,omitempty"`
	ProviderRequestID string            `json:"provider_request_id,omitempty"`
	BatchID           *string           `json:"batch_id,omitempty"`
	RecipientID       *string           `json:"recipient_id,omitempty"`
	RegeneratedFrom   *string           `json:"regenerated_from,omitempty"`
	Publish           *PublishOverrides `json:"publish,omitempty"`
	PublishStatus     PublishStatus     `json:"publish_status,omitempty"`
	OutputURL         string            `json:"output_url,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	RecoveryAttempts  int               `json:"recovery_attempts"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

// NewPipelineJob validates the definition and returns a queued job.
func NewPipelineJob(name string, steps []Step, sourceVideoURL string) (*PipelineJob, error) {
	AssignStepIDs(steps)
	if err := ValidateSteps(steps, sourceVideoURL); err != nil {
		return nil, err
	}
	for _, s := range EnabledSteps(steps) {
		if s.Kind.FanOut() {
			return nil, fmt.Errorf("%w: step %q", domain.ErrUnresolvedFanOut, s.ID)
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "pipeline " + time.Now().UTC().Format("2006-01-02 15:04")
	}
	now := time.Now().UTC()
	return &PipelineJob{
		ID:             uuid.NewString(),
		Name:           name,
		Steps:          steps,
		TotalSteps:     len(EnabledSteps(steps)),
		Status:         JobStatusQueued,
		Progress:       "Queued",
		StepResults:    []StepResult{},
		SourceVideoURL: sourceVideoURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (j *PipelineJob) EnabledSteps() []Step { return EnabledSteps(j.Steps) }

// WorkingArtifact is the input for the step at CurrentStep.
func (j *PipelineJob) WorkingArtifact() string {
	if n := len(j.StepResults); n > 0 {
		return j.StepResults[n-1].OutputURL
	}
	return j.SourceVideoURL
}

// AwaitingProvider reports whether the in-flight step is parked on the provider.
func (j *PipelineJob) AwaitingProvider() bool {
	return j.Status == JobStatusProcessing && j.ProviderRequestID != ""
}

// StepLabel renders "Step 2/3: text overlay".
func (j *PipelineJob) StepLabel(idx int, note string) string {
	steps := j.EnabledSteps()
	name := "step"
	if idx >= 0 && idx < len(steps) {
		name = steps[idx].Kind.Label()
	}
	label := fmt.Sprintf("Step %d/%d: %s", idx+1, j.TotalSteps, name)
	if note != "" {
		label += ", " + note
	}
	return label
}

// Regenerate clones a terminal job into a new queued one outside any batch.
func (j *PipelineJob) Regenerate() (*PipelineJob, error) {
	if !j.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrInvalidArgument, j.ID, j.Status)
	}
	steps := make([]Step, len(j.Steps))
	copy(steps, j.Steps)
	next, err := NewPipelineJob(j.Name, steps, j.SourceVideoURL)
	if err != nil {
		return nil, err
	}
	from := j.ID
	next.RegeneratedFrom = &from
	next.RecipientID = j.RecipientID
	if j.Publish != nil {
		p := *j.Publish
		next.Publish = &p
	}
	return next, nil
}
