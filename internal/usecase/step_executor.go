package usecase

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
)

// StepOutcome is either a finished artifact or a pending provider request.
type StepOutcome struct {
	ArtifactURL string
	RequestID   string
}

func (o StepOutcome) Pending() bool { return o.RequestID != "" }

// StepExecutor runs one step against the working artifact. It holds no job
// state; everything it produces is returned to the caller to persist.
type StepExecutor struct {
	provider  adapter.GenerationProvider
	transform adapter.MediaTransform
	storage   adapter.ObjectStorage
	hooks     WebhookURLBuilder
	workDir   string
	log       *zerolog.Logger
}

func NewStepExecutor(
	provider adapter.GenerationProvider,
	transform adapter.MediaTransform,
	storage adapter.ObjectStorage,
	hooks WebhookURLBuilder,
	workDir string,
	logger *zerolog.Logger,
) *StepExecutor {
	l := logger.With().Str("component", "step_executor").Logger()
	return &StepExecutor{provider: provider, transform: transform, storage: storage, hooks: hooks, workDir: workDir, log: &l}
}

func (e *StepExecutor) Execute(ctx context.Context, job *model.PipelineJob, step model.Step, input string) (StepOutcome, error) {
	switch cfg := step.Config.(type) {
	case model.FaceSwapConfig:
		req := adapter.GenerationRequest{
			Kind:              model.StepFaceSwap,
			InputURL:          input,
			ReferenceImageURL: cfg.ReferenceImageURL,
			Options:           cfg.Options,
		}
		return e.submit(ctx, job.ID, req)
	case model.GenerateVideoConfig:
		req := adapter.GenerationRequest{
			Kind:            model.StepGenerateVideo,
			Provider:        cfg.Provider,
			Prompt:          cfg.Prompt,
			ImageURL:        cfg.ImageURL,
			AspectRatio:     cfg.AspectRatio,
			DurationSeconds: cfg.DurationSeconds,
		}
		if cfg.Mode == model.GenerateFromVideo {
			req.InputURL = input
		}
		return e.submit(ctx, job.ID, req)
	case model.BatchFaceSwapConfig:
		return StepOutcome{}, fmt.Errorf("%w: step %q", domain.ErrUnresolvedFanOut, step.ID)
	case nil:
		return StepOutcome{}, fmt.Errorf("%w: step %q has no config", domain.ErrInvalidArgument, step.ID)
	default:
		u, err := e.transformStep(ctx, job.ID, step, input)
		if err != nil {
			return StepOutcome{}, err
		}
		return StepOutcome{ArtifactURL: u}, nil
	}
}

// SubmitFaceSwap starts the single provider call of a legacy job.
func (e *StepExecutor) SubmitFaceSwap(ctx context.Context, job *model.Job) (string, error) {
	out, err := e.submit(ctx, job.ID, adapter.GenerationRequest{
		Kind:              model.StepFaceSwap,
		InputURL:          job.SourceURL,
		ReferenceImageURL: job.ReferenceImageURL,
	})
	return out.RequestID, err
}

func (e *StepExecutor) submit(ctx context.Context, jobID string, req adapter.GenerationRequest) (StepOutcome, error) {
	var err error
	req.JobID = jobID
	// the provider fetches inputs itself, so our own objects go out signed
	if req.InputURL, err = e.sign(ctx, req.InputURL); err != nil {
		return StepOutcome{}, err
	}
	if req.ReferenceImageURL, err = e.sign(ctx, req.ReferenceImageURL); err != nil {
		return StepOutcome{}, err
	}
	if req.ImageURL, err = e.sign(ctx, req.ImageURL); err != nil {
		return StepOutcome{}, err
	}
	if e.hooks != nil {
		if req.WebhookURL, err = e.hooks.WebhookURL(jobID); err != nil {
			return StepOutcome{}, fmt.Errorf("webhook url: %w", err)
		}
	}
	id, err := e.provider.Submit(ctx, req)
	if err != nil {
		return StepOutcome{}, fmt.Errorf("submit to provider: %w", err)
	}
	return StepOutcome{RequestID: id}, nil
}

func (e *StepExecutor) sign(ctx context.Context, u string) (string, error) {
	if u == "" || !e.storage.Owns(u) {
		return u, nil
	}
	s, err := e.storage.SignedURL(ctx, u)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", u, err)
	}
	return s, nil
}

// StoreProviderArtifact copies a provider result into our storage under a key
// derived from the job, step and request, so a repeated store overwrites the
// same object instead of adding a second one.
func (e *StepExecutor) StoreProviderArtifact(ctx context.Context, key, artifactURL string) (string, error) {
	data, err := e.provider.FetchArtifact(ctx, artifactURL)
	if err != nil {
		return "", fmt.Errorf("fetch provider artifact: %w", err)
	}
	u, err := e.storage.Upload(ctx, data, key, "video/mp4")
	if err != nil {
		return "", fmt.Errorf("store provider artifact: %w", err)
	}
	return u, nil
}

func ProviderArtifactKey(jobID, stepID, requestID string) string {
	return path.Join("pipeline", jobID, fmt.Sprintf("%s-%s.mp4", stepID, safeKey(requestID)))
}

func LegacyArtifactKey(jobID, requestID string) string {
	return path.Join("jobs", fmt.Sprintf("%s-%s.mp4", jobID, safeKey(requestID)))
}

func safeKey(s string) string {
	return strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(s)
}

func (e *StepExecutor) transformStep(ctx context.Context, jobID string, step model.Step, input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("%w: step %q has no input video", domain.ErrSourceRequired, step.ID)
	}
	dir, err := os.MkdirTemp(e.workDir, "job-"+jobID+"-")
	if err != nil {
		return "", fmt.Errorf("work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	urls := append([]string{input}, extraInputs(step.Config)...)
	files := make([]string, 0, len(urls))
	for i, u := range urls {
		f, err := e.download(ctx, dir, i, u)
		if err != nil {
			return "", err
		}
		files = append(files, f)
	}

	out, err := e.transform.Apply(ctx, step.Kind, files, step.Config, filepath.Join(dir, "out"))
	if err != nil {
		return "", fmt.Errorf("%s: %w", step.Kind, err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("read transform output: %w", err)
	}
	key := path.Join("pipeline", jobID, step.ID+".mp4")
	u, err := e.storage.Upload(ctx, data, key, "video/mp4")
	if err != nil {
		return "", fmt.Errorf("upload %s output: %w", step.Kind, err)
	}
	e.log.Debug().Str("job_id", jobID).Str("step", step.ID).Str("output", u).Msg("transform stored")
	return u, nil
}

func (e *StepExecutor) download(ctx context.Context, dir string, i int, u string) (string, error) {
	data, err := e.storage.Download(ctx, u)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", u, err)
	}
	ext := path.Ext(strings.SplitN(u, "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = ".bin"
	}
	f := filepath.Join(dir, fmt.Sprintf("in-%d%s", i, ext))
	if err := os.WriteFile(f, data, 0o644); err != nil {
		return "", fmt.Errorf("write input: %w", err)
	}
	return f, nil
}

// extraInputs lists the files a transform needs besides the working video, in
// the order MediaTransform expects them.
func extraInputs(cfg model.StepConfig) []string {
	switch c := cfg.(type) {
	case model.AudioMixConfig:
		return []string{c.AudioURL}
	case model.ConcatConfig:
		return c.ClipURLs
	case model.ComposeConfig:
		out := make([]string, 0, len(c.Layers))
		for _, l := range c.Layers {
			out = append(out, l.URL)
		}
		return out
	}
	return nil
}
