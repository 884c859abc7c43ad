package apiv1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediaflow/internal/infra/logging"
	"mediaflow/internal/usecase"
)

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var in usecase.CreateJobInput
	if err := decode(r, w, &in, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.d.Jobs.CreateJob(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.d.Jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) getPipelineJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.d.Jobs.GetPipelineJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) runPipelineJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.WithJobID(r.Context(), id)
	j, err := s.d.Jobs.RunPipeline(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}

func (s *Server) regeneratePipelineJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := s.d.Jobs.Regenerate(logging.WithJobID(r.Context(), id), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (s *Server) rejectPipelineJob(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Publish.RejectPublish(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
