package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "flow_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	entriesRejected *prometheus.CounterVec

	aggregationTotal   *prometheus.CounterVec
	aggregationLatency *prometheus.HistogramVec

	alertsActive *prometheus.GaugeVec
	alertsFired  *prometheus.CounterVec

	cacheState        *prometheus.GaugeVec
	cacheWrites       *prometheus.CounterVec
	subscriptionFails *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers engine metrics. When cacheDB is set, a gauge reports the
// number of documents held by the local offline store.
func Init(cacheDB *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		entriesRejected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "entries_rejected_total",
				Help: "Raw records excluded from aggregation by record kind",
			},
			[]string{"kind"},
		)

		aggregationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_passes_total",
				Help: "Total dashboard aggregation passes by result",
			},
			[]string{"result"},
		)
		aggregationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregation_latency_seconds",
				Help:    "Dashboard aggregation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		alertsActive = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "alerts_active",
				Help: "Alerts produced by the latest aggregation pass by kind and severity",
			},
			[]string{"kind", "severity"},
		)
		alertsFired = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_fired_total",
				Help: "Alerts that newly appeared between passes by kind",
			},
			[]string{"kind"},
		)

		cacheState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "cache_state",
				Help: "Local cache reconciler state (1 for the current state)",
			},
			[]string{"state"},
		)
		cacheWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_optimistic_writes_total",
				Help: "Optimistic mutations by result",
			},
			[]string{"result"},
		)
		subscriptionFails = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "subscription_failures_total",
				Help: "Live subscription failures by collection",
			},
			[]string{"collection"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total dashboard exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Dashboard export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			entriesRejected,
			aggregationTotal,
			aggregationLatency,
			alertsActive,
			alertsFired,
			cacheState,
			cacheWrites,
			subscriptionFails,
			exportTotal,
			exportLatency,
		)

		if cacheDB != nil {
			registerCacheMetrics(cacheDB, logger)
		}
	})
}

// IncEntryRejected counts a record skipped by the normalizer.
func IncEntryRejected(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if entriesRejected != nil {
		entriesRejected.WithLabelValues(kind).Inc()
	}
}

// ObserveAggregation records an aggregation pass.
func ObserveAggregation(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if aggregationTotal != nil {
		aggregationTotal.WithLabelValues(result).Inc()
	}
	if aggregationLatency != nil {
		aggregationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// SetActiveAlerts replaces the active alert gauge with counts keyed by kind and severity.
func SetActiveAlerts(counts map[[2]string]int) {
	if alertsActive == nil {
		return
	}
	alertsActive.Reset()
	for key, count := range counts {
		alertsActive.WithLabelValues(key[0], key[1]).Set(float64(count))
	}
}

// IncAlertFired counts an alert that was not present in the previous pass.
func IncAlertFired(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if alertsFired != nil {
		alertsFired.WithLabelValues(kind).Inc()
	}
}

// SetCacheState marks the current reconciler state.
func SetCacheState(state string, all []string) {
	if cacheState == nil {
		return
	}
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1
		}
		cacheState.WithLabelValues(s).Set(value)
	}
}

// IncCacheWrite counts an optimistic mutation outcome.
func IncCacheWrite(result string) {
	if result == "" {
		result = resultSuccess
	}
	if cacheWrites != nil {
		cacheWrites.WithLabelValues(result).Inc()
	}
}

// IncSubscriptionFailure counts a terminal subscription error.
func IncSubscriptionFailure(collection string) {
	if collection == "" {
		collection = "unknown"
	}
	if subscriptionFails != nil {
		subscriptionFails.WithLabelValues(collection).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
