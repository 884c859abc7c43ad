package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		stepsTotal,
		stepDuration,
		providerCallsTotal,
		providerCallDuration,
		webhooksTotal,
		recoveryJobsTotal,
		recoverySweepsTotal,
	)
}

var (
	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaflow_transform_steps_total",
			Help: "Local transform steps applied, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaflow_transform_step_duration_seconds",
			Help:    "Local transform step latency by kind.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaflow_provider_calls_total",
			Help: "Calls to generation providers by provider, operation and result.",
		},
		[]string{"provider", "op", "result"},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaflow_provider_call_duration_seconds",
			Help:    "Generation provider call latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "op"},
	)

	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaflow_webhooks_total",
			Help: "Provider completion callbacks by outcome.",
		},
		[]string{"outcome"}, // accepted|unknown|unauthorized|rejected
	)

	recoveryJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaflow_recovery_jobs_total",
			Help: "Jobs inspected by recovery sweeps, by outcome.",
		},
		[]string{"outcome"}, // resumed|failed|waiting|skipped|error
	)

	recoverySweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaflow_recovery_sweeps_total",
			Help: "Recovery sweeps by trigger and result.",
		},
		[]string{"trigger", "result"},
	)
)

func ObserveStep(kind string, d time.Duration, err error) {
	stepsTotal.WithLabelValues(norm(kind), result(err)).Inc()
	stepDuration.WithLabelValues(norm(kind)).Observe(d.Seconds())
}

func ObserveProviderCall(provider, op string, d time.Duration, err error) {
	providerCallsTotal.WithLabelValues(norm(provider), op, result(err)).Inc()
	providerCallDuration.WithLabelValues(norm(provider), op).Observe(d.Seconds())
}

func IncWebhook(outcome string) {
	webhooksTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncRecoveryJob(outcome string) {
	recoveryJobsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncRecoverySweep(trigger string, err error) {
	recoverySweepsTotal.WithLabelValues(norm(trigger), result(err)).Inc()
}
