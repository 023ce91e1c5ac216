package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	paymentInitiations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_initiations_total",
			Help: "Total payment initiations",
		},
		[]string{"method"},
	)

	paymentSettlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_settlements_total",
			Help: "Total terminal payment transitions",
		},
		[]string{"result"},
	)

	signatureFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_signature_failures_total",
			Help: "Callbacks rejected for bad or unverifiable signatures",
		},
	)

	callbackReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_callback_replays_total",
			Help: "Callbacks for payments already in a terminal state",
		},
	)

	pendingSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_pending_sessions_total",
			Help: "Current live payment sessions in Redis",
		},
	)

	reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_reconcile_duration_seconds",
			Help:    "Duration of callback reconciliation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

func TrackInitiation(method string) {
	paymentInitiations.WithLabelValues(method).Inc()
}

func TrackSettlement(result string) {
	paymentSettlements.WithLabelValues(result).Inc()
}

func TrackSignatureFailure() {
	signatureFailures.Inc()
}

func TrackCallbackReplay() {
	callbackReplays.Inc()
}

func TrackReconcileDuration(d time.Duration) {
	reconcileDuration.Observe(d.Seconds())
}

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collectSessionMetrics(context.Background())
	}
}

func (m *Monitor) collectSessionMetrics(ctx context.Context) {
	keys, err := m.redis.Keys(ctx, "payment:*").Result()
	if err != nil {
		return
	}
	pendingSessions.Set(float64(len(keys)))
}
