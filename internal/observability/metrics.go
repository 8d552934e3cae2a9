// Package observability exposes process-wide Prometheus metrics for the
// chat core: send pipeline outcomes, key pool health, and store latencies.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	sendTotal    *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec

	activeChats       prometheus.Gauge
	storeReadDuration prometheus.Histogram
	storeSaveDuration prometheus.Histogram

	keyAcquireTotal      prometheus.Counter
	keyFailureTotal      prometheus.Counter
	keyDeactivationTotal prometheus.Counter
	poolKeysActive       prometheus.Gauge
	poolKeysTotal        prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			sendTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_send_total",
					Help: "Total send pipeline runs by model and outcome.",
				},
				[]string{"model", "outcome"},
			),
			sendDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "chat_send_duration_seconds",
					Help:    "Send pipeline duration in seconds by model.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"model"},
			),
			activeChats: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_chats",
					Help: "Current chat count in the store.",
				},
			),
			storeReadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "store_read_duration_seconds",
					Help:    "Key-value record read duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			storeSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "store_save_duration_seconds",
					Help:    "Key-value record save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			keyAcquireTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "key_acquire_total",
					Help: "Total key acquisitions from the pool.",
				},
			),
			keyFailureTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "key_failure_total",
					Help: "Total failures reported against keys.",
				},
			),
			keyDeactivationTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "key_deactivation_total",
					Help: "Total keys deactivated after repeated failures.",
				},
			),
			poolKeysActive: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "pool_keys_active",
					Help: "Current active key count in the pool.",
				},
			),
			poolKeysTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "pool_keys_total",
					Help: "Current total key count in the pool.",
				},
			),
		}

		prometheus.MustRegister(
			m.sendTotal,
			m.sendDuration,
			m.activeChats,
			m.storeReadDuration,
			m.storeSaveDuration,
			m.keyAcquireTotal,
			m.keyFailureTotal,
			m.keyDeactivationTotal,
			m.poolKeysActive,
			m.poolKeysTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordSend(model string, duration time.Duration, outcome string) {
	m := getMetrics()
	m.sendTotal.WithLabelValues(model, outcome).Inc()
	m.sendDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func SetActiveChats(count int) {
	getMetrics().activeChats.Set(float64(count))
}

func RecordStoreRead(duration time.Duration) {
	getMetrics().storeReadDuration.Observe(duration.Seconds())
}

func RecordStoreSave(duration time.Duration) {
	getMetrics().storeSaveDuration.Observe(duration.Seconds())
}

func RecordKeyAcquire() {
	getMetrics().keyAcquireTotal.Inc()
}

func RecordKeyFailure(deactivated bool) {
	m := getMetrics()
	m.keyFailureTotal.Inc()
	if deactivated {
		m.keyDeactivationTotal.Inc()
	}
}

func SetPoolKeys(active, total int) {
	m := getMetrics()
	m.poolKeysActive.Set(float64(active))
	m.poolKeysTotal.Set(float64(total))
}
