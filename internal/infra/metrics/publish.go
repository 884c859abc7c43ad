package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(postsTotal, batchNotificationsTotal)
}

var (
	postsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaflow_posts_total",
			Help: "Per-target publish outcomes by platform and status.",
		},
		[]string{"platform", "status"},
	)

	batchNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaflow_batch_notifications_total",
			Help: "Batch completion notifications by final status and result.",
		},
		[]string{"status", "result"},
	)
)

func IncPost(platform, status string) {
	postsTotal.WithLabelValues(norm(platform), norm(status)).Inc()
}

func IncBatchNotification(status string, err error) {
	batchNotificationsTotal.WithLabelValues(norm(status), result(err)).Inc()
}
