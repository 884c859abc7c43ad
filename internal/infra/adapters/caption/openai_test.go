package caption_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"mediaflow/internal/config"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/infra/adapters/caption"
)

// wordTokenizer counts whitespace separated words as tokens.
type wordTokenizer struct{}

func (wordTokenizer) Count(s string) int { return len(strings.Fields(s)) }
func (wordTokenizer) Truncate(s string, max int) string {
	f := strings.Fields(s)
	if len(f) <= max {
		return s
	}
	return strings.Join(f[:max], " ")
}

func newWriter(t *testing.T, baseURL string, maxPrompt int) *caption.Writer {
	t.Helper()
	log := zerolog.Nop()
	w, err := caption.NewWriter(config.CaptionConfig{
		OpenAIKey:       "sk-test",
		BaseURL:         baseURL,
		Model:           "gpt-4o-mini",
		MaxPromptTokens: maxPrompt,
	}, &log)
	if err != nil {
		t.Fatal(err)
	}
	return w.WithTokenizer(wordTokenizer{})
}

func TestPrompt_TrimsHintToBudget(t *testing.T) {
	w := newWriter(t, "http://unused/", 12)
	p := w.Prompt(adapter.CaptionRequest{
		JobName:  "beach",
		Platform: model.PlatformTikTok,
		Hint:     "one two three four five six seven eight nine ten",
	})
	// head is "Platform: TikTok / Video: beach / Notes:" = 5 words, leaving 7
	if !strings.HasSuffix(p, "Notes: one two three four five six seven") {
		t.Fatalf("prompt = %q", p)
	}
	if got := (wordTokenizer{}).Count(p); got > 12 {
		t.Fatalf("prompt has %d tokens, budget 12", got)
	}
}

func TestPrompt_DropsHintWhenNoBudget(t *testing.T) {
	w := newWriter(t, "http://unused/", 3)
	p := w.Prompt(adapter.CaptionRequest{JobName: "beach", Platform: model.PlatformYouTube, Hint: "anything"})
	if strings.Contains(p, "Notes") {
		t.Fatalf("hint should be dropped, got %q", p)
	}
}

func TestCaption_UsesChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		if body.Model != "gpt-4o-mini" || len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("unexpected request %s", b)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"\"Sun, sand, swap #beach\""}}]}`)
	}))
	defer srv.Close()

	w := newWriter(t, srv.URL+"/", 256)
	got, err := w.Caption(context.Background(), adapter.CaptionRequest{JobName: "beach", Platform: model.PlatformInstagram})
	if err != nil {
		t.Fatalf("Caption: %v", err)
	}
	if got != "Sun, sand, swap #beach" {
		t.Fatalf("caption = %q", got)
	}
}
