package usecase

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"mediaflow/internal/domain/ports/adapter"
)

// SourceResolver makes a source video durable before jobs start from it.
type SourceResolver interface {
	Resolve(ctx context.Context, sourceURL string) (string, error)
}

type storageSourceResolver struct {
	storage adapter.ObjectStorage
}

// NewSourceResolver copies remote videos into object storage and passes our
// own urls through unchanged.
func NewSourceResolver(storage adapter.ObjectStorage) SourceResolver {
	return &storageSourceResolver{storage: storage}
}

func (r *storageSourceResolver) Resolve(ctx context.Context, sourceURL string) (string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" || r.storage.Owns(sourceURL) {
		return sourceURL, nil
	}
	data, err := r.storage.Download(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("resolve source video: %w", err)
	}
	ext := path.Ext(strings.SplitN(sourceURL, "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = ".mp4"
	}
	u, err := r.storage.Upload(ctx, data, path.Join("sources", uuid.NewString()+ext), "")
	if err != nil {
		return "", fmt.Errorf("store source video: %w", err)
	}
	return u, nil
}
