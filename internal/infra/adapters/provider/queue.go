package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediaflow/internal/config"
	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/infra/httpx"
	"mediaflow/internal/infra/metrics"
)

var _ adapter.GenerationProvider = (*QueueProvider)(nil)

const queueName = "queue"

// QueueProvider talks to a request-queue generation API:
//
//	POST {base}/{model}               -> {"request_id"}
//	GET  {base}/requests/{id}/status  -> {"status","error"}
//	GET  {base}/requests/{id}         -> {"video":{"url"}} | {"output_url"}
type QueueProvider struct {
	base          string
	apiKey        string
	faceSwapModel string
	generateModel string
	client        *http.Client
	policy        httpx.Policy
	log           *zerolog.Logger
}

func NewQueueProvider(cfg config.ProviderConfig, log *zerolog.Logger) (*QueueProvider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("queue provider: empty base url")
	}
	l := log.With().Str("component", "provider").Str("provider", queueName).Logger()
	return &QueueProvider{
		base:          strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		faceSwapModel: cfg.FaceSwapModel,
		generateModel: cfg.GenerateModel,
		client:        &http.Client{Timeout: cfg.Timeout},
		policy:        httpx.DefaultPolicy(cfg.MaxRetries),
		log:           &l,
	}, nil
}

type queueInput struct {
	VideoURL        string         `json:"video_url,omitempty"`
	SwapImageURL    string         `json:"swap_image_url,omitempty"`
	ImageURL        string         `json:"image_url,omitempty"`
	Prompt          string         `json:"prompt,omitempty"`
	AspectRatio     string         `json:"aspect_ratio,omitempty"`
	DurationSeconds int            `json:"duration,omitempty"`
	Options         map[string]any `json:"options,omitempty"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type resultResponse struct {
	Video *struct {
		URL string `json:"url"`
	} `json:"video,omitempty"`
	OutputURL string `json:"output_url,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (q *QueueProvider) modelFor(req adapter.GenerationRequest) string {
	if strings.TrimSpace(req.Model) != "" {
		return req.Model
	}
	if req.Kind == model.StepGenerateVideo {
		return q.generateModel
	}
	return q.faceSwapModel
}

func (q *QueueProvider) Submit(ctx context.Context, req adapter.GenerationRequest) (string, error) {
	start := time.Now()
	id, err := q.submit(ctx, req)
	metrics.ObserveProviderCall(queueName, "submit", time.Since(start), err)
	if err != nil {
		return "", err
	}
	q.log.Info().Str("job_id", req.JobID).Str("request_id", id).Str("kind", string(req.Kind)).Msg("submitted")
	return id, nil
}

func (q *QueueProvider) submit(ctx context.Context, req adapter.GenerationRequest) (string, error) {
	m := q.modelFor(req)
	if m == "" {
		return "", fmt.Errorf("%w: no provider model for %s", domain.ErrInvalidArgument, req.Kind)
	}
	body, err := json.Marshal(queueInput{
		VideoURL:        req.InputURL,
		SwapImageURL:    req.ReferenceImageURL,
		ImageURL:        req.ImageURL,
		Prompt:          req.Prompt,
		AspectRatio:     req.AspectRatio,
		DurationSeconds: req.DurationSeconds,
		Options:         req.Options,
	})
	if err != nil {
		return "", err
	}
	endpoint := q.base + "/" + strings.TrimLeft(m, "/")
	if req.WebhookURL != "" {
		endpoint += "?webhook=" + url.QueryEscape(req.WebhookURL)
	}

	var out submitResponse
	if err := q.doJSON(ctx, "provider submit", http.MethodPost, endpoint, body, &out); err != nil {
		return "", err
	}
	if out.RequestID == "" {
		return "", errors.New("provider submit: empty request_id")
	}
	return out.RequestID, nil
}

func (q *QueueProvider) PollStatus(ctx context.Context, requestID string) (adapter.ProviderStatus, error) {
	start := time.Now()
	var out statusResponse
	err := q.doJSON(ctx, "provider status", http.MethodGet, q.base+"/requests/"+url.PathEscape(requestID)+"/status", nil, &out)
	metrics.ObserveProviderCall(queueName, "status", time.Since(start), err)
	if err != nil {
		return adapter.ProviderUnknown, err
	}
	return ParseStatus(out.Status), nil
}

func (q *QueueProvider) PollResult(ctx context.Context, requestID string) (string, error) {
	start := time.Now()
	var out resultResponse
	err := q.doJSON(ctx, "provider result", http.MethodGet, q.base+"/requests/"+url.PathEscape(requestID), nil, &out)
	metrics.ObserveProviderCall(queueName, "result", time.Since(start), err)
	if err != nil {
		return "", err
	}
	if out.Error != "" || ParseStatus(out.Status) == adapter.ProviderFailed {
		return "", fmt.Errorf("%w: %s", domain.ErrProviderFailed, out.Error)
	}
	if out.Video != nil && out.Video.URL != "" {
		return out.Video.URL, nil
	}
	if out.OutputURL != "" {
		return out.OutputURL, nil
	}
	return "", fmt.Errorf("%w: result has no video url", domain.ErrProviderFailed)
}

func (q *QueueProvider) FetchArtifact(ctx context.Context, artifactURL string) ([]byte, error) {
	start := time.Now()
	b, err := fetch(ctx, q.client, q.policy, artifactURL, nil)
	metrics.ObserveProviderCall(queueName, "fetch", time.Since(start), err)
	return b, err
}

func (q *QueueProvider) doJSON(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	resp, err := httpx.Do(ctx, q.client, q.policy, op, func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, r)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if q.apiKey != "" {
			req.Header.Set("Authorization", "Key "+q.apiKey)
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

// fetch downloads url with retries, setting the given headers on every attempt.
func fetch(ctx context.Context, c *http.Client, p httpx.Policy, rawURL string, header http.Header) ([]byte, error) {
	resp, err := httpx.Do(ctx, c, p, "fetch artifact", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact: read: %w", err)
	}
	if len(b) == 0 {
		return nil, errors.New("fetch artifact: empty body")
	}
	return b, nil
}

// ParseStatus maps the provider's status vocabulary onto ours.
func ParseStatus(s string) adapter.ProviderStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IN_QUEUE", "QUEUED", "PENDING":
		return adapter.ProviderQueued
	case "IN_PROGRESS", "RUNNING", "PROCESSING":
		return adapter.ProviderRunning
	case "COMPLETED", "OK", "SUCCEEDED", "SUCCESS":
		return adapter.ProviderCompleted
	case "FAILED", "ERROR", "CANCELLED":
		return adapter.ProviderFailed
	}
	return adapter.ProviderUnknown
}
