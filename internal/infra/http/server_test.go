package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"mediaflow/internal/config"
	apiv1 "mediaflow/internal/infra/api/apiv1"
)

func newTestServer(checks map[string]HealthCheck) *Server {
	l := zerolog.Nop()
	return NewServer(config.HTTPConfig{APIKey: "k"}, apiv1.NewServer(apiv1.Deps{}, &l), checks, &l)
}

func TestHealth(t *testing.T) {
	t.Run("200 when every check passes", func(t *testing.T) {
		s := newTestServer(map[string]HealthCheck{"db": func(context.Context) error { return nil }})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
	})

	t.Run("503 names the failing dependency", func(t *testing.T) {
		s := newTestServer(map[string]HealthCheck{"redis": func(context.Context) error { return errors.New("connection refused") }})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "connection refused") {
			t.Fatalf("got %d, body=%s", rec.Code, rec.Body.String())
		}
	})
}

func TestMetricsAndAuth(t *testing.T) {
	s := newTestServer(nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: want 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/x", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("api without key: want 401, got %d", rec.Code)
	}
}
