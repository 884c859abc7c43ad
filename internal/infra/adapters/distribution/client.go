// Package distribution is the HTTP client for the social publishing endpoint.
package distribution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediaflow/internal/config"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/infra/httpx"
	"mediaflow/internal/infra/metrics"
)

var _ adapter.Distribution = (*Client)(nil)

type Client struct {
	base   string
	apiKey string
	http   *http.Client
	policy httpx.Policy
	log    *zerolog.Logger
}

func NewClient(cfg config.DistributionConfig, log *zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("distribution: empty base url")
	}
	l := log.With().Str("component", "distribution").Logger()
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
		policy: httpx.DefaultPolicy(cfg.MaxRetries),
		log:    &l,
	}, nil
}

func (c *Client) PresignUpload(ctx context.Context, filename, contentType string) (adapter.PresignedUpload, error) {
	body, _ := json.Marshal(map[string]string{"filename": filename, "content_type": contentType})
	var out adapter.PresignedUpload
	if err := c.postJSON(ctx, "presign upload", "/media/presign", body, &out); err != nil {
		return adapter.PresignedUpload{}, err
	}
	if out.UploadURL == "" || out.PublicURL == "" {
		return adapter.PresignedUpload{}, errors.New("presign upload: incomplete response")
	}
	return out, nil
}

// Upload PUTs the file to a presigned intake url. The url is pre-authorized,
// so no API key is sent.
func (c *Client) Upload(ctx context.Context, uploadURL string, data []byte, contentType string) error {
	start := time.Now()
	resp, err := httpx.Do(ctx, c.http, c.policy, "upload media", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.ContentLength = int64(len(data))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	c.log.Debug().Int("bytes", len(data)).Dur("took", time.Since(start)).Msg("media uploaded")
	return nil
}

func (c *Client) CreatePost(ctx context.Context, req adapter.CreatePostRequest) (*adapter.CreatePostResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var out adapter.CreatePostResponse
	if err := c.postJSON(ctx, "create post", "/posts", body, &out); err != nil {
		for _, t := range req.Targets {
			metrics.IncPost(string(t.Platform), "error")
		}
		return nil, err
	}
	for _, p := range out.Platforms {
		metrics.IncPost(string(p.Platform), p.Status)
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, body []byte, out any) error {
	resp, err := httpx.Do(ctx, c.http, c.policy, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
