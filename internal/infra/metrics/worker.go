package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(workerTasksTotal, workerQueueDepth)
}

var (
	workerTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaflow_worker_tasks_total",
			Help: "Background tasks run by the worker pool, by name and result.",
		},
		[]string{"task", "result"}, // result: ok|error|rejected
	)

	workerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaflow_worker_queue_depth",
			Help: "Tasks waiting in the worker pool queue.",
		},
	)
)

func IncWorkerTask(task, outcome string) {
	workerTasksTotal.WithLabelValues(norm(task), norm(outcome)).Inc()
}

func SetWorkerQueueDepth(n int) {
	workerQueueDepth.Set(float64(n))
}
