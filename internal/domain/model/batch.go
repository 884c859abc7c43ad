package model

import "time"

type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusPartial    BatchStatus = "partial"
)

func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed || s == BatchStatusPartial
}

// AggregateBatchStatus is the only source of a batch's status once children exist.
func AggregateBatchStatus(total, completed, failed int) BatchStatus {
	switch {
	case total <= 0:
		return BatchStatusPending
	case completed >= total:
		return BatchStatusCompleted
	case failed >= total:
		return BatchStatusFailed
	case completed+failed >= total:
		return BatchStatusPartial
	default:
		return BatchStatusProcessing
	}
}

// MasterRecipient is a snapshot of one recipient taken when the batch was created.
type MasterRecipient struct {
	RecipientID       string   `json:"recipient_id"`
	Name              string   `json:"name"`
	ReferenceImageURL string   `json:"reference_image_url"`
	AccountIDs        []string `json:"account_ids"`
}

type MasterConfig struct {
	Caption     string            `json:"caption,omitempty"`
	PublishMode PublishMode       `json:"publish_mode,omitempty"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
	Recipients  []MasterRecipient `json:"recipients"`
}

func (m *MasterConfig) Recipient(id string) *MasterRecipient {
	if m == nil {
		return nil
	}
	for i := range m.Recipients {
		if m.Recipients[i].RecipientID == id {
			return &m.Recipients[i]
		}
	}
	return nil
}

type Batch struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Status         BatchStatus   `json:"status"`
	TotalJobs      int           `json:"total_jobs"`
	CompletedJobs  int           `json:"completed_jobs"`
	FailedJobs     int           `json:"failed_jobs"`
	Template       []Step        `json:"template"`
	SourceVideoURL string        `json:"source_video_url,omitempty"`
	IsMaster       bool          `json:"is_master"`
	Master         *MasterConfig `json:"master,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Progress is the share of finished children in percent.
func (b *Batch) Progress() int {
	if b.TotalJobs <= 0 {
		return 0
	}
	return (b.CompletedJobs + b.FailedJobs) * 100 / b.TotalJobs
}

// Finished reports whether every child has reached a terminal status.
func (b *Batch) Finished() bool {
	return b.TotalJobs > 0 && b.CompletedJobs+b.FailedJobs >= b.TotalJobs
}
