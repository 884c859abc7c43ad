package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(buildInfo, dbConnections, cacheLookupsTotal) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediaflow_build_info",
			Help: "Always 1, labelled with the running build.",
		},
		[]string{"version", "commit", "go_version"},
	)

	dbConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediaflow_db_connections",
			Help: "Job store connections by driver and state.",
		},
		[]string{"driver", "state"}, // state: open|idle|in_use
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaflow_cache_lookups_total",
			Help: "Redis read-through lookups by cache and outcome.",
		},
		[]string{"cache", "result"},
	)
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}

// SetDBPoolStats publishes a snapshot taken from pgxpool.Stat or sql.DBStats.
func SetDBPoolStats(driver string, open, idle, inUse int) {
	d := norm(driver)
	dbConnections.WithLabelValues(d, "open").Set(float64(open))
	dbConnections.WithLabelValues(d, "idle").Set(float64(idle))
	dbConnections.WithLabelValues(d, "in_use").Set(float64(inUse))
}

func ObserveCacheLookup(cache string, hit bool) {
	r := "miss"
	if hit {
		r = "hit"
	}
	cacheLookupsTotal.WithLabelValues(norm(cache), r).Inc()
}
