package apiv1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediaflow/internal/domain/model"
	"mediaflow/internal/usecase"
)

type createBatchRequest struct {
	Name           string       `json:"name"`
	Steps          []model.Step `json:"steps"`
	SourceVideoURL string       `json:"source_video_url"`
	RecipientIDs   []string     `json:"recipient_ids"`
}

type createMasterBatchRequest struct {
	createBatchRequest
	Caption     string            `json:"caption"`
	PublishMode model.PublishMode `json:"publish_mode"`
	ScheduledAt string            `json:"scheduled_at"`
	Timezone    string            `json:"timezone"`
}

func (b createBatchRequest) input() usecase.CreateBatchInput {
	return usecase.CreateBatchInput{
		Name:           b.Name,
		Template:       b.Steps,
		SourceVideoURL: b.SourceVideoURL,
		RecipientIDs:   b.RecipientIDs,
	}
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := decode(r, w, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.startBatch(w, r, req.input())
}

func (s *Server) createMasterBatch(w http.ResponseWriter, r *http.Request) {
	var req createMasterBatchRequest
	if err := decode(r, w, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	at, err := parseTime(req.ScheduledAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in := req.input()
	in.Master = &usecase.MasterInput{
		Caption:     req.Caption,
		PublishMode: req.PublishMode,
		ScheduledAt: at,
		Timezone:    req.Timezone,
	}
	s.startBatch(w, r, in)
}

func (s *Server) startBatch(w http.ResponseWriter, r *http.Request, in usecase.CreateBatchInput) {
	res, err := s.d.Batches.CreateBatch(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	d, err := s.d.Batches.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Batches.DeleteBatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
