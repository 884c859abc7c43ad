// Package objectstore keeps artifacts in a Google Cloud Storage bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"mediaflow/internal/config"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/infra/httpx"
)

var _ adapter.ObjectStorage = (*GCS)(nil)

type GCS struct {
	client    *storage.Client
	keys      Keyspace
	signedTTL time.Duration
	http      *http.Client
	policy    httpx.Policy
}

func NewGCS(ctx context.Context, cfg config.StorageConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs: empty bucket")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{
		client:    c,
		keys:      NewKeyspace(cfg.Bucket, cfg.PublicBaseURL),
		signedTTL: cfg.SignedURLTTL,
		http:      &http.Client{Timeout: 5 * time.Minute},
		policy:    httpx.DefaultPolicy(3),
	}, nil
}

func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) Upload(ctx context.Context, data []byte, name, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.keys.Bucket).Object(name).NewWriter(ctx)
	if contentType == "" {
		contentType = ContentTypeForKey(name)
	}
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return g.keys.PublicURL(name), nil
}

// Download reads objects of our bucket directly and fetches anything else over HTTP.
func (g *GCS) Download(ctx context.Context, rawURL string) ([]byte, error) {
	if key, ok := g.keys.Key(rawURL); ok {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		r, err := g.client.Bucket(g.keys.Bucket).Object(key).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("open gcs object %q: %w", key, err)
		}
		defer r.Close()
		return io.ReadAll(r)
	}

	resp, err := httpx.Do(ctx, g.http, g.policy, "download", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// SignedURL returns a V4 GET url for our objects and foreign urls unchanged.
func (g *GCS) SignedURL(ctx context.Context, publicURL string) (string, error) {
	key, ok := g.keys.Key(publicURL)
	if !ok {
		return publicURL, nil
	}
	return g.client.Bucket(g.keys.Bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(g.signedTTL),
	})
}

func (g *GCS) Owns(rawURL string) bool {
	_, ok := g.keys.Key(rawURL)
	return ok
}

// Keyspace maps object keys to public urls and back.
type Keyspace struct {
	Bucket   string
	prefixes []string
}

func NewKeyspace(bucket, publicBaseURL string) Keyspace {
	k := Keyspace{Bucket: bucket}
	if base := strings.TrimRight(publicBaseURL, "/"); base != "" {
		k.prefixes = append(k.prefixes, base+"/")
	}
	k.prefixes = append(k.prefixes,
		"https://storage.googleapis.com/"+bucket+"/",
		"gs://"+bucket+"/",
	)
	return k
}

func (k Keyspace) PublicURL(key string) string {
	return k.prefixes[0] + strings.TrimLeft(key, "/")
}

func (k Keyspace) Key(rawURL string) (string, bool) {
	u := rawURL
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	for _, p := range k.prefixes {
		if strings.HasPrefix(u, p) && len(u) > len(p) {
			return u[len(p):], true
		}
	}
	return "", false
}

func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".mp4"), strings.HasSuffix(s, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(s, ".webm"):
		return "video/webm"
	case strings.HasSuffix(s, ".mov"):
		return "video/quicktime"
	case strings.HasSuffix(s, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(s, ".wav"):
		return "audio/wav"
	default:
		return ""
	}
}
