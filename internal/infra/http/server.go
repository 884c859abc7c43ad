package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mediaflow/internal/config"
	"mediaflow/internal/infra/api"
	apiv1 "mediaflow/internal/infra/api/apiv1"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	cfg    config.HTTPConfig
	api    *apiv1.Server
	checks map[string]HealthCheck
	log    *zerolog.Logger
	server *http.Server
}

func NewServer(cfg config.HTTPConfig, apiSrv *apiv1.Server, checks map[string]HealthCheck, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http_server").Logger()
	return &Server{cfg: cfg, api: apiSrv, checks: checks, log: &l}
}

// Handler builds the full route tree. /health and /metrics sit outside the
// request timeout and the API key check.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(api.TraceID(), api.RequestLog(s.log), api.Recover(s.log), api.Timeout(s.cfg.RequestTimeout))
	r.Get("/health", s.handleHealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	apiv1.RegisterAPIV1(r, s.api, api.RequireAPIKey(s.cfg.APIKey))
	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.Port).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	status := map[string]string{}
	code := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": http.StatusText(code), "checks": status})
}
