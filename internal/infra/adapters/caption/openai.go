// Package caption drafts post captions with an OpenAI chat model.
package caption

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"mediaflow/internal/config"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
)

var _ adapter.CaptionWriter = (*Writer)(nil)

const systemPrompt = "You write one short, upbeat social media caption for a video. " +
	"Reply with the caption only: no quotes, at most two hashtags, under 150 characters."

// Tokenizer counts and trims prompt tokens.
type Tokenizer interface {
	Count(text string) int
	Truncate(text string, max int) string
}

type Writer struct {
	client    openai.Client
	model     string
	maxPrompt int
	tok       Tokenizer
	log       *zerolog.Logger
}

func NewWriter(cfg config.CaptionConfig, log *zerolog.Logger) (*Writer, error) {
	if cfg.OpenAIKey == "" {
		return nil, errors.New("caption: empty openai key")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIKey), option.WithMaxRetries(2)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	l := log.With().Str("component", "caption").Logger()
	return &Writer{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxPrompt: cfg.MaxPromptTokens,
		tok:       newTiktoken(cfg.Model, &l),
		log:       &l,
	}, nil
}

// WithTokenizer swaps the tokenizer, mainly for tests.
func (w *Writer) WithTokenizer(t Tokenizer) *Writer {
	w.tok = t
	return w
}

func (w *Writer) Caption(ctx context.Context, req adapter.CaptionRequest) (string, error) {
	prompt := w.Prompt(req)
	resp, err := w.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(w.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(80),
	})
	if err != nil {
		return "", fmt.Errorf("caption: %w", err)
	}
	for _, c := range resp.Choices {
		if s := strings.Trim(strings.TrimSpace(c.Message.Content), `"`); s != "" {
			return s, nil
		}
	}
	return "", errors.New("caption: no choice content")
}

// Prompt renders the user message, trimming the free-form hint so the whole
// message stays within the prompt token budget.
func (w *Writer) Prompt(req adapter.CaptionRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Platform: %s\n", platformName(req.Platform))
	if req.RecipientName != "" {
		fmt.Fprintf(&sb, "Creator: %s\n", req.RecipientName)
	}
	if req.JobName != "" {
		fmt.Fprintf(&sb, "Video: %s\n", req.JobName)
	}
	head := sb.String()
	hint := strings.TrimSpace(req.Hint)
	if hint == "" {
		return strings.TrimSpace(head)
	}
	const label = "Notes: "
	budget := w.maxPrompt - w.tok.Count(head+label)
	if budget <= 0 {
		return strings.TrimSpace(head)
	}
	return head + label + strings.TrimSpace(w.tok.Truncate(hint, budget))
}

func platformName(p model.Platform) string {
	switch p {
	case model.PlatformTikTok:
		return "TikTok"
	case model.PlatformInstagram:
		return "Instagram Reels"
	case model.PlatformYouTube:
		return "YouTube Shorts"
	case model.PlatformFacebook:
		return "Facebook"
	case model.PlatformX:
		return "X"
	case "":
		return "any"
	}
	return string(p)
}

// tiktokenizer loads its encoding on first use; when the encoding cannot be
// loaded it falls back to about four bytes per token.
type tiktokenizer struct {
	model string
	log   *zerolog.Logger
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func newTiktoken(model string, log *zerolog.Logger) *tiktokenizer {
	return &tiktokenizer{model: model, log: log}
}

func (t *tiktokenizer) load() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(t.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err != nil {
			t.log.Warn().Err(err).Msg("tiktoken unavailable, estimating tokens")
			return
		}
		t.enc = enc
	})
	return t.enc
}

func (t *tiktokenizer) Count(text string) int {
	if enc := t.load(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

func (t *tiktokenizer) Truncate(text string, max int) string {
	if enc := t.load(); enc != nil {
		toks := enc.Encode(text, nil, nil)
		if len(toks) <= max {
			return text
		}
		return enc.Decode(toks[:max])
	}
	n := max * 4
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
