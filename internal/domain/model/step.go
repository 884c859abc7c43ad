package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"mediaflow/internal/domain"
)

type StepKind string

const (
	StepFaceSwap      StepKind = "face_swap"
	StepGenerateVideo StepKind = "generate_video"
	StepBatchFaceSwap StepKind = "batch_face_swap"
	StepTextOverlay   StepKind = "text_overlay"
	StepAudioMix      StepKind = "audio_mix"
	StepConcat        StepKind = "concat"
	StepCompose       StepKind = "compose"
)

// Async reports whether the kind is delegated to the generation provider.
func (k StepKind) Async() bool {
	return k == StepFaceSwap || k == StepGenerateVideo
}

// FanOut reports whether the kind expands into one child job per recipient.
func (k StepKind) FanOut() bool { return k == StepBatchFaceSwap }

// Label is the human readable name used in progress notes.
func (k StepKind) Label() string { return strings.ReplaceAll(string(k), "_", " ") }

// StepConfig is the closed set of per-kind step configurations.
type StepConfig interface {
	Kind() StepKind
	// RequiresInput reports whether the step needs a working video to start from.
	RequiresInput() bool
	Validate() error
}

type FaceSwapConfig struct {
	ReferenceImageURL string         `json:"reference_image_url"`
	ModelID           string         `json:"model_id,omitempty"`
	Options           map[string]any `json:"options,omitempty"`
}

func (FaceSwapConfig) Kind() StepKind      { return StepFaceSwap }
func (FaceSwapConfig) RequiresInput() bool { return true }
func (c FaceSwapConfig) Validate() error {
	if strings.TrimSpace(c.ReferenceImageURL) == "" {
		return fmt.Errorf("%w: face_swap requires reference_image_url", domain.ErrInvalidArgument)
	}
	return nil
}

type GenerateMode string

const (
	GenerateFromText  GenerateMode = "text"
	GenerateFromImage GenerateMode = "image"
	GenerateFromVideo GenerateMode = "video"
)

type GenerateVideoConfig struct {
	Mode            GenerateMode `json:"mode"`
	Prompt          string       `json:"prompt,omitempty"`
	ImageURL        string       `json:"image_url,omitempty"`
	Provider        string       `json:"provider,omitempty"` // empty selects the default queue provider
	AspectRatio     string       `json:"aspect_ratio,omitempty"`
	DurationSeconds int          `json:"duration_seconds,omitempty"`
}

func (GenerateVideoConfig) Kind() StepKind { return StepGenerateVideo }

// RequiresInput is true only for video-to-video generation.
func (c GenerateVideoConfig) RequiresInput() bool { return c.Mode == GenerateFromVideo }

func (c GenerateVideoConfig) Validate() error {
	switch c.Mode {
	case GenerateFromText:
		if strings.TrimSpace(c.Prompt) == "" {
			return fmt.Errorf("%w: text generation requires a prompt", domain.ErrInvalidArgument)
		}
	case GenerateFromImage:
		if strings.TrimSpace(c.ImageURL) == "" {
			return fmt.Errorf("%w: image generation requires image_url", domain.ErrInvalidArgument)
		}
	case GenerateFromVideo:
	default:
		return fmt.Errorf("%w: unknown generate mode %q", domain.ErrInvalidArgument, c.Mode)
	}
	if c.DurationSeconds < 0 {
		return fmt.Errorf("%w: negative duration", domain.ErrInvalidArgument)
	}
	return nil
}

// BatchFaceSwapConfig carries the plural recipient list a batch fans out over.
type BatchFaceSwapConfig struct {
	ModelIDs  []string `json:"model_ids,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

func (BatchFaceSwapConfig) Kind() StepKind      { return StepBatchFaceSwap }
func (BatchFaceSwapConfig) RequiresInput() bool { return true }
func (c BatchFaceSwapConfig) Validate() error   { return nil }

type TextOverlayConfig struct {
	Text     string `json:"text"`
	Position string `json:"position,omitempty"` // top|center|bottom
	FontSize int    `json:"font_size,omitempty"`
	Color    string `json:"color,omitempty"`
}

func (TextOverlayConfig) Kind() StepKind      { return StepTextOverlay }
func (TextOverlayConfig) RequiresInput() bool { return true }
func (c TextOverlayConfig) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("%w: text_overlay requires text", domain.ErrInvalidArgument)
	}
	switch c.Position {
	case "", "top", "center", "bottom":
		return nil
	}
	return fmt.Errorf("%w: unknown overlay position %q", domain.ErrInvalidArgument, c.Position)
}

type AudioMixConfig struct {
	AudioURL        string  `json:"audio_url"`
	Volume          float64 `json:"volume,omitempty"`
	ReplaceOriginal bool    `json:"replace_original,omitempty"`
}

func (AudioMixConfig) Kind() StepKind      { return StepAudioMix }
func (AudioMixConfig) RequiresInput() bool { return true }
func (c AudioMixConfig) Validate() error {
	if strings.TrimSpace(c.AudioURL) == "" {
		return fmt.Errorf("%w: audio_mix requires audio_url", domain.ErrInvalidArgument)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: negative volume", domain.ErrInvalidArgument)
	}
	return nil
}

type ConcatConfig struct {
	ClipURLs []string `json:"clip_urls"`
	Prepend  bool     `json:"prepend,omitempty"`
}

func (ConcatConfig) Kind() StepKind      { return StepConcat }
func (ConcatConfig) RequiresInput() bool { return true }
func (c ConcatConfig) Validate() error {
	if len(c.ClipURLs) == 0 {
		return fmt.Errorf("%w: concat requires at least one clip", domain.ErrInvalidArgument)
	}
	return nil
}

type Layer struct {
	URL     string  `json:"url"`
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Scale   float64 `json:"scale,omitempty"`
	Opacity float64 `json:"opacity,omitempty"`
}

type ComposeConfig struct {
	Layers []Layer `json:"layers"`
}

func (ComposeConfig) Kind() StepKind      { return StepCompose }
func (ComposeConfig) RequiresInput() bool { return true }
func (c ComposeConfig) Validate() error {
	if len(c.Layers) == 0 {
		return fmt.Errorf("%w: compose requires at least one layer", domain.ErrInvalidArgument)
	}
	for i, l := range c.Layers {
		if strings.TrimSpace(l.URL) == "" {
			return fmt.Errorf("%w: compose layer %d has no url", domain.ErrInvalidArgument, i)
		}
	}
	return nil
}

// Step is one entry of a pipeline definition.
type Step struct {
	ID      string
	Kind    StepKind
	Enabled bool
	Config  StepConfig
}

type stepJSON struct {
	ID      string          `json:"id"`
	Kind    StepKind        `json:"type"`
	Enabled *bool           `json:"enabled,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
}

func (s Step) MarshalJSON() ([]byte, error) {
	enabled := s.Enabled
	raw, err := json.Marshal(s.Config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stepJSON{ID: s.ID, Kind: s.Kind, Enabled: &enabled, Config: raw})
}

// UnmarshalJSON dispatches on "type". A missing "enabled" means enabled.
func (s *Step) UnmarshalJSON(b []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	cfg, err := newStepConfig(raw.Kind)
	if err != nil {
		return err
	}
	if len(raw.Config) > 0 && string(raw.Config) != "null" {
		if err := json.Unmarshal(raw.Config, cfg); err != nil {
			return fmt.Errorf("%w: step %q config: %v", domain.ErrInvalidArgument, raw.ID, err)
		}
	}
	s.ID = raw.ID
	s.Kind = raw.Kind
	s.Enabled = raw.Enabled == nil || *raw.Enabled
	s.Config = derefConfig(cfg)
	return nil
}

func newStepConfig(kind StepKind) (any, error) {
	switch kind {
	case StepFaceSwap:
		return &FaceSwapConfig{}, nil
	case StepGenerateVideo:
		return &GenerateVideoConfig{}, nil
	case StepBatchFaceSwap:
		return &BatchFaceSwapConfig{}, nil
	case StepTextOverlay:
		return &TextOverlayConfig{}, nil
	case StepAudioMix:
		return &AudioMixConfig{}, nil
	case StepConcat:
		return &ConcatConfig{}, nil
	case StepCompose:
		return &ComposeConfig{}, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStepKind, kind)
}

func derefConfig(v any) StepConfig {
	switch c := v.(type) {
	case *FaceSwapConfig:
		return *c
	case *GenerateVideoConfig:
		return *c
	case *BatchFaceSwapConfig:
		return *c
	case *TextOverlayConfig:
		return *c
	case *AudioMixConfig:
		return *c
	case *ConcatConfig:
		return *c
	case *ComposeConfig:
		return *c
	}
	return nil
}

// StepResult is one entry of a job's step log.
type StepResult struct {
	StepID    string   `json:"step_id"`
	Kind      StepKind `json:"kind"`
	Label     string   `json:"label"`
	OutputURL string   `json:"output_url"`
}

// EnabledSteps returns the enabled steps in order.
func EnabledSteps(steps []Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// ValidateSteps checks a pipeline definition against the source it will start from.
func ValidateSteps(steps []Step, sourceVideoURL string) error {
	enabled := EnabledSteps(steps)
	if len(enabled) == 0 {
		return domain.ErrNoEnabledSteps
	}
	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		if s.Config == nil {
			return fmt.Errorf("%w: step %d has no config", domain.ErrInvalidArgument, i)
		}
		if s.Config.Kind() != s.Kind {
			return fmt.Errorf("%w: step %d kind %q does not match its config", domain.ErrInvalidArgument, i, s.Kind)
		}
		if s.ID != "" {
			if _, dup := seen[s.ID]; dup {
				return fmt.Errorf("%w: duplicate step id %q", domain.ErrInvalidArgument, s.ID)
			}
			seen[s.ID] = struct{}{}
		}
		if !s.Enabled {
			continue
		}
		if err := s.Config.Validate(); err != nil {
			return err
		}
	}
	if enabled[0].Config.RequiresInput() && strings.TrimSpace(sourceVideoURL) == "" {
		return domain.ErrSourceRequired
	}
	return nil
}

// AssignStepIDs fills empty step ids with positional ones.
func AssignStepIDs(steps []Step) {
	for i := range steps {
		if steps[i].ID == "" {
			steps[i].ID = fmt.Sprintf("step-%d", i+1)
		}
	}
}
