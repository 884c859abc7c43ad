package model

import "time"

// Recipient is the person ("model") a generated video is made for.
type Recipient struct {
	ID                string    `json:"id" yaml:"id"`
	Name              string    `json:"name" yaml:"name"`
	ReferenceImageURL string    `json:"reference_image_url" yaml:"reference_image_url"`
	CreatedAt         time.Time `json:"created_at" yaml:"-"`
}

// DistributionAccount links a recipient to one account on one platform.
type DistributionAccount struct {
	ID          string    `json:"id" yaml:"id"`
	RecipientID string    `json:"recipient_id" yaml:"recipient_id"`
	Platform    Platform  `json:"platform" yaml:"platform"`
	Handle      string    `json:"handle" yaml:"handle"`
	Active      bool      `json:"active" yaml:"active"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}
