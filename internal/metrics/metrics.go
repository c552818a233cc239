package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GateRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gate_requests_total",
			Help: "Token validation requests by outcome",
		},
		[]string{"outcome"},
	)

	GateDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "approval_gate_duration_seconds",
			Help:    "Time spent validating a token, including database round trips",
			Buckets: prometheus.DefBuckets,
		},
	)

	GateStoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gate_store_errors_total",
			Help: "Store failures seen by the gate by operation",
		},
		[]string{"operation"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gate_notifications_total",
			Help: "Security notifications by result (sent, failed, dropped, duplicate)",
		},
		[]string{"result"},
	)

	MaintenancePrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gate_maintenance_pruned_total",
			Help: "Rows removed by the maintenance job by table",
		},
		[]string{"table"},
	)
)

// RecordGateOutcome records one gate call. An empty outcome means success.
func RecordGateOutcome(outcome string, took time.Duration) {
	if outcome == "" {
		outcome = "OK"
	}
	GateRequestsTotal.WithLabelValues(outcome).Inc()
	GateDurationSeconds.Observe(took.Seconds())
}

func RecordStoreError(operation string) {
	GateStoreErrorsTotal.WithLabelValues(operation).Inc()
}

func RecordNotification(result string) {
	NotificationsTotal.WithLabelValues(result).Inc()
}

func RecordPruned(table string, rows int64) {
	if rows > 0 {
		MaintenancePrunedTotal.WithLabelValues(table).Add(float64(rows))
	}
}
