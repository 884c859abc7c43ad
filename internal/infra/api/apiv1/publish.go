package apiv1

import (
	"fmt"
	"net/http"
	"strings"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/infra/logging"
	"mediaflow/internal/infra/metrics"
	"mediaflow/internal/usecase"
)

type publishRequest struct {
	JobID       string                  `json:"job_id"`
	Targets     []usecase.PublishTarget `json:"targets"`
	Mode        model.PublishMode       `json:"mode"`
	ScheduledAt string                  `json:"scheduled_at"`
	Timezone    string                  `json:"timezone"`
	Caption     string                  `json:"caption"`
	Force       bool                    `json:"force"`
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decode(r, w, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		s.writeError(w, r, fmt.Errorf("%w: job_id is required", domain.ErrInvalidArgument))
		return
	}
	at, err := parseTime(req.ScheduledAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sum, err := s.d.Publish.Publish(logging.WithJobID(r.Context(), req.JobID), usecase.PublishInput{
		JobID:          req.JobID,
		Targets:        req.Targets,
		Mode:           req.Mode,
		ScheduledAt:    at,
		Timezone:       req.Timezone,
		Caption:        req.Caption,
		Force:          req.Force,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		CreatedBy:      "api",
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.URL.Query().Get("job_id"))
	if jobID == "" {
		s.writeError(w, r, fmt.Errorf("%w: job_id is required", domain.ErrInvalidArgument))
		return
	}
	posts, err := s.d.Publish.ListPosts(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if posts == nil {
		posts = []*model.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": posts})
}

func (s *Server) recoverStuckJobs(w http.ResponseWriter, r *http.Request) {
	report, err := s.d.Recovery.Sweep(r.Context(), "api")
	metrics.IncRecoverySweep("api", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, it := range report.Items {
		metrics.IncRecoveryJob(it.Action)
	}
	writeJSON(w, http.StatusOK, report)
}
