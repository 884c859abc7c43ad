package adapter

import (
	"context"
	"time"

	"mediaflow/internal/domain/model"
)

type PresignedUpload struct {
	UploadURL string `json:"upload_url"`
	PublicURL string `json:"public_url"`
}

type PostTarget struct {
	AccountID string         `json:"account_id"`
	Platform  model.Platform `json:"platform"`
	Options   map[string]any `json:"options,omitempty"`
}

type CreatePostRequest struct {
	Caption     string       `json:"caption"`
	MediaURLs   []string     `json:"media_urls"`
	Targets     []PostTarget `json:"platforms"`
	PublishNow  bool         `json:"publish_now"`
	IsDraft     bool         `json:"is_draft,omitempty"`
	ScheduledAt *time.Time   `json:"scheduled_for,omitempty"`
	Timezone    string       `json:"timezone,omitempty"`
}

type PlatformResult struct {
	Platform  model.Platform `json:"platform"`
	AccountID string         `json:"account_id"`
	Status    string         `json:"status"`
	PostID    string         `json:"platform_post_id,omitempty"`
	URL       string         `json:"platform_post_url,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type CreatePostResponse struct {
	PostID    string           `json:"post_id"`
	Status    string           `json:"status"`
	Platforms []PlatformResult `json:"platforms"`
}

// Distribution is the third-party publishing endpoint.
type Distribution interface {
	PresignUpload(ctx context.Context, filename, contentType string) (PresignedUpload, error)
	Upload(ctx context.Context, uploadURL string, data []byte, contentType string) error
	CreatePost(ctx context.Context, req CreatePostRequest) (*CreatePostResponse, error)
}
