// Package apiv1 is the operator and provider facing HTTP surface, mounted
// under /api/v1.
package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/infra/logging"
	"mediaflow/internal/usecase"
)

const (
	Prefix      = "/api/v1"
	maxBodySize = 1 << 20
)

type JobService interface {
	CreateJob(ctx context.Context, in usecase.CreateJobInput) (*usecase.CreatedJob, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	GetPipelineJob(ctx context.Context, id string) (*model.PipelineJob, error)
	RunPipeline(ctx context.Context, id string) (*model.PipelineJob, error)
	Regenerate(ctx context.Context, id string) (*model.PipelineJob, error)
}

type BatchService interface {
	CreateBatch(ctx context.Context, in usecase.CreateBatchInput) (*usecase.CreateBatchResult, error)
	GetBatch(ctx context.Context, id string) (*adapter.BatchDetails, error)
	DeleteBatch(ctx context.Context, id string) error
}

type WebhookHandler interface {
	HandleWebhook(ctx context.Context, ev usecase.WebhookEvent) error
}

type RecoveryService interface {
	Sweep(ctx context.Context, trigger string) (*usecase.RecoveryReport, error)
}

type PublishService interface {
	Publish(ctx context.Context, in usecase.PublishInput) (*usecase.PublishSummary, error)
	RejectPublish(ctx context.Context, jobID string) error
	ListPosts(ctx context.Context, jobID string) ([]*model.Post, error)
}

// TokenVerifier returns the job id bound to a webhook token.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type Deps struct {
	Jobs     JobService
	Batches  BatchService
	Webhooks WebhookHandler
	Recovery RecoveryService
	Publish  PublishService
	Tokens   TokenVerifier
}

type Server struct {
	d   Deps
	log *zerolog.Logger
}

func NewServer(d Deps, logger *zerolog.Logger) *Server {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{d: d, log: &l}
}

// RegisterAPIV1 mounts every route under Prefix. operator guards all routes
// except the provider webhook, which carries its own signed token.
func RegisterAPIV1(r chi.Router, s *Server, operator ...func(http.Handler) http.Handler) {
	r.Route(Prefix, func(r chi.Router) {
		r.Post("/webhooks/provider", s.providerWebhook)

		r.Group(func(r chi.Router) {
			r.Use(operator...)

			r.Post("/jobs", s.createJob)
			r.Get("/jobs/{id}", s.getJob)

			r.Get("/pipeline-jobs/{id}", s.getPipelineJob)
			r.Post("/pipeline-jobs/{id}/run", s.runPipelineJob)
			r.Post("/pipeline-jobs/{id}/regenerate", s.regeneratePipelineJob)
			r.Post("/pipeline-jobs/{id}/reject", s.rejectPipelineJob)

			r.Post("/batch-jobs", s.createBatch)
			r.Post("/master-batch", s.createMasterBatch)
			r.Get("/batch-jobs/{id}", s.getBatch)
			r.Delete("/batch-jobs/{id}", s.deleteBatch)

			r.Post("/recover-stuck-jobs", s.recoverStuckJobs)
			r.Post("/publish", s.publish)
			r.Get("/posts", s.listPosts)
		})
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps domain errors onto HTTP codes. Anything unrecognised is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrNoEnabledSteps),
		errors.Is(err, domain.ErrSourceRequired),
		errors.Is(err, domain.ErrUnknownStepKind),
		errors.Is(err, domain.ErrUnresolvedFanOut),
		errors.Is(err, domain.ErrRecipientsRequired),
		errors.Is(err, domain.ErrNoPublishTargets):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrJobNotPublishable),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSweepCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	if code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, code, errorBody{Error: msg})
}

// decode reads a JSON body. An empty body is a bad request unless optional.
func decode(r *http.Request, w http.ResponseWriter, v any, optional bool) error {
	if r.Body == nil {
		if optional {
			return nil
		}
		return fmt.Errorf("%w: request body required", domain.ErrInvalidArgument)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return fmt.Errorf("%w: request body required", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: scheduled_at must be RFC 3339", domain.ErrInvalidArgument)
	}
	return &t, nil
}
