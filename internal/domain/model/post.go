package model

import (
	"strings"
	"time"
)

type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformFacebook  Platform = "facebook"
	PlatformX         Platform = "x"
)

type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusPending    PostStatus = "pending"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
	PostStatusPartial    PostStatus = "partial"
	PostStatusCancelled  PostStatus = "cancelled"
	// PostStatusSkipped is only reported, never stored.
	PostStatusSkipped    PostStatus = "skipped"
)

// Reusable reports whether an existing row may be retried without force.
func (s PostStatus) Reusable() bool {
	return s == PostStatusFailed || s == PostStatusCancelled
}

// Delivered reports whether the distribution endpoint accepted the post.
func (s PostStatus) Delivered() bool {
	switch s {
	case PostStatusPublished, PostStatusScheduled, PostStatusPublishing, PostStatusPartial:
		return true
	}
	return false
}

// ParsePostStatus maps a distribution endpoint status onto ours.
func ParsePostStatus(s string) PostStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "published", "success", "succeeded", "posted":
		return PostStatusPublished
	case "scheduled":
		return PostStatusScheduled
	case "failed", "error":
		return PostStatusFailed
	case "partial":
		return PostStatusPartial
	case "draft":
		return PostStatusDraft
	case "cancelled", "canceled":
		return PostStatusCancelled
	default:
		return PostStatusPublishing
	}
}

// Post is one publication attempt; (JobID, AccountID, Platform) is unique.
type Post struct {
	ID           string     `json:"id"`
	JobID        string     `json:"job_id"`
	AccountID    string     `json:"account_id"`
	Platform     Platform   `json:"platform"`
	Caption      string     `json:"caption"`
	MediaURL     string     `json:"media_url"`
	Status       PostStatus `json:"status"`
	ExternalID   string     `json:"external_id,omitempty"`
	ExternalURL  string     `json:"external_url,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedBy    string     `json:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
