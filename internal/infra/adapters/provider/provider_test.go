package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediaflow/internal/config"
	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/infra/adapters/provider"
)

type stubProvider struct {
	name       string
	submitN    int
	lastPolled string
}

func (s *stubProvider) Submit(ctx context.Context, req adapter.GenerationRequest) (string, error) {
	s.submitN++
	return s.name + "-req", nil
}
func (s *stubProvider) PollStatus(ctx context.Context, id string) (adapter.ProviderStatus, error) {
	s.lastPolled = id
	return adapter.ProviderRunning, nil
}
func (s *stubProvider) PollResult(ctx context.Context, id string) (string, error) {
	s.lastPolled = id
	return "https://cdn/" + id + ".mp4", nil
}
func (s *stubProvider) FetchArtifact(ctx context.Context, u string) ([]byte, error) {
	return []byte(s.name), nil
}

func TestRouter_PrefixesNamedHandles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	queue := &stubProvider{name: "queue"}
	veo := &stubProvider{name: "veo"}
	r := provider.NewRouter("queue", map[string]adapter.GenerationProvider{"queue": queue, "veo": veo})

	// default provider: handle untouched
	h, err := r.Submit(ctx, adapter.GenerationRequest{Kind: model.StepFaceSwap})
	if err != nil || h != "queue-req" {
		t.Fatalf("default submit: %q %v", h, err)
	}
	if _, err := r.PollStatus(ctx, h); err != nil || queue.lastPolled != "queue-req" {
		t.Fatalf("default poll routed wrong: %q %v", queue.lastPolled, err)
	}

	// named provider: prefixed and stripped on the way back
	h, err = r.Submit(ctx, adapter.GenerationRequest{Kind: model.StepGenerateVideo, Provider: "VEO"})
	if err != nil || h != "veo:veo-req" {
		t.Fatalf("veo submit: %q %v", h, err)
	}
	u, err := r.PollResult(ctx, h)
	if err != nil || veo.lastPolled != "veo-req" || u != "https://cdn/veo-req.mp4" {
		t.Fatalf("veo result routed wrong: %q %q %v", veo.lastPolled, u, err)
	}

	// an unknown prefix is just part of the default provider's id
	if _, err := r.PollStatus(ctx, "other:123"); err != nil || queue.lastPolled != "other:123" {
		t.Fatalf("unknown prefix should go to default, got %q", queue.lastPolled)
	}

	if _, err := r.Submit(ctx, adapter.GenerationRequest{Provider: "nope"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("unknown provider should be invalid argument, got %v", err)
	}
}

func TestRouter_FetchArtifactByHost(t *testing.T) {
	t.Parallel()
	r := provider.NewRouter("queue", map[string]adapter.GenerationProvider{
		"queue": &stubProvider{name: "queue"},
		"veo":   &stubProvider{name: "veo"},
	})
	b, _ := r.FetchArtifact(context.Background(), "https://generativelanguage.googleapis.com/v1beta/files/abc:download")
	if string(b) != "veo" {
		t.Fatalf("veo file uri should be fetched by veo, got %q", b)
	}
	b, _ = r.FetchArtifact(context.Background(), "https://cdn.example.com/out.mp4")
	if string(b) != "queue" {
		t.Fatalf("other urls go to default, got %q", b)
	}
}

func newQueue(t *testing.T, h http.Handler) *provider.QueueProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	log := zerolog.Nop()
	q, err := provider.NewQueueProvider(config.ProviderConfig{
		BaseURL:       srv.URL,
		APIKey:        "secret",
		FaceSwapModel: "swap/v1",
		Timeout:       5 * time.Second,
		MaxRetries:    3,
	}, &log)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestQueueProvider_SubmitRetriesAndSendsWebhook(t *testing.T) {
	var calls atomic.Int32
	q := newQueue(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/swap/v1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Key secret" {
			t.Errorf("missing auth header")
		}
		if got := r.URL.Query().Get("webhook"); got != "https://hooks/x?token=t" {
			t.Errorf("webhook = %q", got)
		}
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["video_url"] != "https://in.mp4" || in["swap_image_url"] != "https://face.png" {
			t.Errorf("body = %v", in)
		}
		_, _ = io.WriteString(w, `{"request_id":"req-1"}`)
	}))

	id, err := q.Submit(context.Background(), adapter.GenerationRequest{
		JobID:             "j1",
		Kind:              model.StepFaceSwap,
		InputURL:          "https://in.mp4",
		ReferenceImageURL: "https://face.png",
		WebhookURL:        "https://hooks/x?token=t",
	})
	if err != nil || id != "req-1" {
		t.Fatalf("submit = %q, %v", id, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
}

func TestQueueProvider_NonRetryableFailsFast(t *testing.T) {
	var calls atomic.Int32
	q := newQueue(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad input", http.StatusUnprocessableEntity)
	}))
	_, err := q.Submit(context.Background(), adapter.GenerationRequest{Kind: model.StepFaceSwap})
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected 422 error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("422 must not be retried, got %d calls", calls.Load())
	}
}

func TestQueueProvider_StatusAndResult(t *testing.T) {
	q := newQueue(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/requests/ok/status":
			_, _ = io.WriteString(w, `{"status":"IN_PROGRESS"}`)
		case "/requests/ok":
			_, _ = io.WriteString(w, `{"video":{"url":"https://cdn/out.mp4"}}`)
		case "/requests/bad":
			_, _ = io.WriteString(w, `{"status":"FAILED","error":"face not found"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	st, err := q.PollStatus(ctx, "ok")
	if err != nil || st != adapter.ProviderRunning {
		t.Fatalf("status = %s, %v", st, err)
	}
	u, err := q.PollResult(ctx, "ok")
	if err != nil || u != "https://cdn/out.mp4" {
		t.Fatalf("result = %q, %v", u, err)
	}
	_, err = q.PollResult(ctx, "bad")
	if !errors.Is(err, domain.ErrProviderFailed) || !strings.Contains(err.Error(), "face not found") {
		t.Fatalf("expected provider failure with reason, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]adapter.ProviderStatus{
		"IN_QUEUE":    adapter.ProviderQueued,
		"in_progress": adapter.ProviderRunning,
		"COMPLETED":   adapter.ProviderCompleted,
		"failed":      adapter.ProviderFailed,
		"exploded":    adapter.ProviderUnknown,
		"":            adapter.ProviderUnknown,
	}
	for in, want := range cases {
		if got := provider.ParseStatus(in); got != want {
			t.Errorf("ParseStatus(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLimited_PassesThrough(t *testing.T) {
	s := &stubProvider{name: "queue"}
	p := provider.NewLimited(s, 1)
	if _, err := p.Submit(context.Background(), adapter.GenerationRequest{}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(context.Background(), adapter.GenerationRequest{}); err != nil {
		t.Fatal(err)
	}
	if s.submitN != 2 {
		t.Fatalf("submitN = %d", s.submitN)
	}
	if provider.NewLimited(s, 0) != adapter.GenerationProvider(s) {
		t.Fatal("non-positive limit should return inner")
	}
}
