package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"mediaflow/internal/config"
	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/infra/httpx"
	"mediaflow/internal/infra/metrics"
)

var _ adapter.GenerationProvider = (*VeoProvider)(nil)

const veoName = "veo"

// VeoProvider runs generate_video steps on Gemini Veo. Veo has no push
// callback, so its jobs always finish through the recovery sweep.
type VeoProvider struct {
	client *genai.Client
	apiKey string
	model  string
	http   *http.Client
	policy httpx.Policy
	log    *zerolog.Logger
}

func NewVeoProvider(ctx context.Context, cfg config.VeoConfig, log *zerolog.Logger) (*VeoProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("veo: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	l := log.With().Str("component", "provider").Str("provider", veoName).Logger()
	return &VeoProvider{
		client: c,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		http:   &http.Client{Timeout: 2 * time.Minute},
		policy: httpx.DefaultPolicy(3),
		log:    &l,
	}, nil
}

func (v *VeoProvider) Submit(ctx context.Context, req adapter.GenerationRequest) (string, error) {
	start := time.Now()
	id, err := v.submit(ctx, req)
	metrics.ObserveProviderCall(veoName, "submit", time.Since(start), err)
	if err != nil {
		return "", err
	}
	v.log.Info().Str("job_id", req.JobID).Str("request_id", id).Msg("submitted")
	return id, nil
}

func (v *VeoProvider) submit(ctx context.Context, req adapter.GenerationRequest) (string, error) {
	if req.Kind != model.StepGenerateVideo {
		return "", fmt.Errorf("%w: veo only runs generate_video, got %s", domain.ErrInvalidArgument, req.Kind)
	}
	var img *genai.Image
	if req.ImageURL != "" {
		b, err := fetch(ctx, v.http, v.policy, req.ImageURL, nil)
		if err != nil {
			return "", fmt.Errorf("veo: reference image: %w", err)
		}
		img = &genai.Image{ImageBytes: b, MIMEType: http.DetectContentType(b)}
	} else if req.InputURL != "" && req.Prompt == "" {
		return "", fmt.Errorf("%w: veo cannot restyle a video", domain.ErrInvalidArgument)
	}

	gc := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    req.AspectRatio,
	}
	if req.DurationSeconds > 0 {
		d := int32(req.DurationSeconds)
		gc.DurationSeconds = &d
	}
	op, err := v.client.Models.GenerateVideos(ctx, modelOrDefault(req.Model, v.model), req.Prompt, img, gc)
	if err != nil {
		return "", fmt.Errorf("veo: generate: %w", err)
	}
	if op == nil || op.Name == "" {
		return "", errors.New("veo: empty operation name")
	}
	return op.Name, nil
}

func (v *VeoProvider) operation(ctx context.Context, requestID string) (*genai.GenerateVideosOperation, error) {
	return v.client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: requestID}, nil)
}

func (v *VeoProvider) PollStatus(ctx context.Context, requestID string) (adapter.ProviderStatus, error) {
	start := time.Now()
	op, err := v.operation(ctx, requestID)
	metrics.ObserveProviderCall(veoName, "status", time.Since(start), err)
	if err != nil {
		return adapter.ProviderUnknown, err
	}
	switch {
	case !op.Done:
		return adapter.ProviderRunning, nil
	case op.Error != nil:
		return adapter.ProviderFailed, nil
	default:
		return adapter.ProviderCompleted, nil
	}
}

func (v *VeoProvider) PollResult(ctx context.Context, requestID string) (string, error) {
	start := time.Now()
	op, err := v.operation(ctx, requestID)
	metrics.ObserveProviderCall(veoName, "result", time.Since(start), err)
	if err != nil {
		return "", err
	}
	if !op.Done {
		return "", fmt.Errorf("veo: operation %s still running", requestID)
	}
	if op.Error != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderFailed, op.Error["message"])
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0].Video == nil || op.Response.GeneratedVideos[0].Video.URI == "" {
		return "", fmt.Errorf("%w: no video in response", domain.ErrProviderFailed)
	}
	return op.Response.GeneratedVideos[0].Video.URI, nil
}

// FetchArtifact downloads a Veo file URI, which needs the API key.
func (v *VeoProvider) FetchArtifact(ctx context.Context, artifactURL string) ([]byte, error) {
	start := time.Now()
	h := http.Header{}
	h.Set("x-goog-api-key", v.apiKey)
	b, err := fetch(ctx, v.http, v.policy, artifactURL, h)
	metrics.ObserveProviderCall(veoName, "fetch", time.Since(start), err)
	return b, err
}

func modelOrDefault(m, def string) string {
	if strings.TrimSpace(m) != "" {
		return m
	}
	return def
}
