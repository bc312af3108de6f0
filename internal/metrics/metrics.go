// Package metrics provides Prometheus metrics for the reclaim server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scan lifecycle
	scansStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reclaim_scans_started_total",
			Help: "Total number of scan tasks started",
		},
	)

	scansFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_scans_finished_total",
			Help: "Total number of scan tasks that reached a terminal state",
		},
		[]string{"status"},
	)

	scansActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reclaim_scans_active",
			Help: "Number of scan tasks currently running",
		},
	)

	reclaimableBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reclaim_reclaimable_bytes_found_total",
			Help: "Total bytes recommended for deletion",
		},
	)

	// Oracle exchanges
	oracleCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_oracle_calls_total",
			Help: "Total classification and verification exchanges",
		},
		[]string{"kind", "outcome"},
	)

	oracleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reclaim_oracle_call_duration_seconds",
			Help:    "Oracle exchange duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		},
		[]string{"kind"},
	)

	oracleTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_oracle_tokens_total",
			Help: "Total tokens billed by the oracle",
		},
		[]string{"kind"},
	)

	// Listing
	listings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_listings_total",
			Help: "Total directory listings by source",
		},
		[]string{"source"},
	)

	// Web search
	searchLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_search_lookups_total",
			Help: "Total web search lookups",
		},
		[]string{"result"},
	)

	// Streaming
	streamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reclaim_stream_subscribers_active",
			Help: "Number of attached SSE and WebSocket subscribers",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordScanStarted records a new scan task.
func RecordScanStarted() {
	scansStarted.Inc()
	scansActive.Inc()
}

// RecordScanFinished records a scan task reaching status.
func RecordScanFinished(status string) {
	scansFinished.WithLabelValues(status).Inc()
	scansActive.Dec()
}

// RecordReclaimable adds bytes found deletable.
func RecordReclaimable(bytes int64) {
	reclaimableBytes.Add(float64(bytes))
}

// RecordOracleCall records one exchange. kind is "classify" or "verify".
func RecordOracleCall(kind string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	oracleCalls.WithLabelValues(kind, outcome).Inc()
	oracleDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordTokens records token usage.
func RecordTokens(prompt, completion int64) {
	oracleTokens.WithLabelValues("prompt").Add(float64(prompt))
	oracleTokens.WithLabelValues("completion").Add(float64(completion))
}

// RecordListing records a listing by source ("dust", "fallback" or "failed").
func RecordListing(source string) {
	listings.WithLabelValues(source).Inc()
}

// RecordSearchLookup records a search result ("hit", "miss", "cached" or "error").
func RecordSearchLookup(result string) {
	searchLookups.WithLabelValues(result).Inc()
}

// SubscriberConnected increments the active subscriber gauge.
func SubscriberConnected() {
	streamSubscribers.Inc()
}

// SubscriberDisconnected decrements the active subscriber gauge.
func SubscriberDisconnected() {
	streamSubscribers.Dec()
}
