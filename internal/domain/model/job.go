package model

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the single-step face swap unit that predates pipelines.
type Job struct {
	ID                string     `json:"id"`
	SourceURL         string     `json:"source_url"`
	ReferenceImageURL string     `json:"reference_image_url"`
	Status            JobStatus  `json:"status"`
	Progress          string     `json:"progress,omitempty"`
	OutputURL         string     `json:"output_url,omitempty"`
	ProviderRequestID string     `json:"provider_request_id,omitempty"`
	BatchID           *string    `json:"batch_id,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	RecoveryAttempts  int        `json:"recovery_attempts"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}
