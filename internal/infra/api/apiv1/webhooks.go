package apiv1

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mediaflow/internal/domain"
	"mediaflow/internal/infra/adapters/provider"
	"mediaflow/internal/infra/logging"
	"mediaflow/internal/infra/metrics"
	"mediaflow/internal/usecase"
)

// providerWebhookRequest accepts both the envelope shape
// ({"payload":{"video":{"url":...}}}) and the flat fields. Top-level
// fields win over the payload ones.
type providerWebhookRequest struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Payload   *struct {
		Video *struct {
			URL string `json:"url"`
		} `json:"video"`
		ArtifactURL string `json:"artifactUrl"`
		Error       string `json:"error"`
	} `json:"payload"`
	OutputURL string `json:"output_url"`
	Error     string `json:"error"`
}

func (p providerWebhookRequest) artifactURL() string {
	if p.Payload != nil && p.Payload.Video != nil && p.Payload.Video.URL != "" {
		return p.Payload.Video.URL
	}
	if p.OutputURL == "" && p.Payload != nil {
		return p.Payload.ArtifactURL
	}
	return p.OutputURL
}

func (p providerWebhookRequest) errorMessage() string {
	if p.Error == "" && p.Payload != nil {
		return p.Payload.Error
	}
	return p.Error
}

func (s *Server) providerWebhook(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.d.Tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		metrics.IncWebhook("unauthorized")
		s.writeError(w, r, err)
		return
	}
	ctx := logging.WithJobID(r.Context(), jobID)

	var req providerWebhookRequest
	if err := decode(r, w, &req, false); err != nil {
		metrics.IncWebhook("rejected")
		s.writeError(w, r, err)
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		metrics.IncWebhook("rejected")
		s.writeError(w, r, fmt.Errorf("%w: request_id is required", domain.ErrInvalidArgument))
		return
	}

	err = s.d.Webhooks.HandleWebhook(ctx, usecase.WebhookEvent{
		JobID:       jobID,
		RequestID:   req.RequestID,
		Status:      provider.ParseStatus(req.Status),
		ArtifactURL: req.artifactURL(),
		Error:       req.errorMessage(),
	})
	switch {
	case err == nil:
		metrics.IncWebhook("accepted")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncWebhook("unknown")
		s.writeError(w, r, err)
	case errors.Is(err, domain.ErrUnauthorized):
		metrics.IncWebhook("unauthorized")
		s.writeError(w, r, err)
	default:
		metrics.IncWebhook("rejected")
		s.writeError(w, r, err)
	}
}
