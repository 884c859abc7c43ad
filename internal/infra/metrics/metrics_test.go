package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNorm(t *testing.T) {
	cases := map[string]string{" TikTok ": "tiktok", "": "unknown", "ok": "ok"}
	for in, want := range cases {
		if got := norm(in); got != want {
			t.Errorf("norm(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCounters(t *testing.T) {
	t.Run("should split provider calls by result", func(t *testing.T) {
		before := testutil.ToFloat64(providerCallsTotal.WithLabelValues("veo", "submit", "error"))
		ObserveProviderCall("VEO", "submit", time.Millisecond, errors.New("boom"))
		after := testutil.ToFloat64(providerCallsTotal.WithLabelValues("veo", "submit", "error"))
		if after-before != 1 {
			t.Errorf("expected one error call, got %v", after-before)
		}
	})

	t.Run("should count posts per platform", func(t *testing.T) {
		IncPost("instagram", "published")
		if v := testutil.ToFloat64(postsTotal.WithLabelValues("instagram", "published")); v < 1 {
			t.Errorf("expected the post counter to move, got %v", v)
		}
	})
}

func TestMustRegisterIsIdempotent(t *testing.T) {
	MustRegister()
	MustRegister()
}

func TestStoreGauges(t *testing.T) {
	SetDBPoolStats("Postgres", 8, 5, 3)
	if v := testutil.ToFloat64(dbConnections.WithLabelValues("postgres", "in_use")); v != 3 {
		t.Errorf("in_use = %v, want 3", v)
	}

	before := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("batch", "hit"))
	ObserveCacheLookup("batch", true)
	ObserveCacheLookup("batch", false)
	if got := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("batch", "hit")) - before; got != 1 {
		t.Errorf("hits moved by %v, want 1", got)
	}
}
