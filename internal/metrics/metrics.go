// Package metrics provides Prometheus metrics for the PhotoSweep server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photosweep_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photosweep_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Session metrics
	sessionsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photosweep_sessions_started_total",
			Help: "Total load sessions started",
		},
	)

	sessionsSupersededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photosweep_sessions_superseded_total",
			Help: "Total load sessions superseded before completion",
		},
	)

	// Loader metrics
	assetsLoadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photosweep_assets_loaded_total",
			Help: "Total assets materialized, by tier",
		},
		[]string{"tier"},
	)

	assetLoadFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photosweep_asset_load_failures_total",
			Help: "Total per-asset resolution failures degraded to estimates",
		},
	)

	// Paging metrics
	pageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photosweep_page_fetches_total",
			Help: "Total asset pages fetched from the provider",
		},
		[]string{"status"},
	)

	// Memory governor metrics
	assetsDemotedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photosweep_assets_demoted_total",
			Help: "Total loaded assets demoted back to placeholders",
		},
	)

	loadedAssetsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photosweep_assets_loaded",
			Help: "Number of fully materialized assets currently in memory",
		},
	)

	// Deletion ledger metrics
	ledgerSizeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photosweep_ledger_entries",
			Help: "Number of assets currently marked for deletion",
		},
	)

	deletesCommittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photosweep_deletes_committed_total",
			Help: "Total bulk delete commits",
		},
		[]string{"status"},
	)

	bytesReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photosweep_bytes_reclaimed_total",
			Help: "Total bytes reclaimed by committed deletions",
		},
	)

	// Provider metrics
	providerOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photosweep_provider_operation_duration_seconds",
			Help:    "Photo store provider operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// Event stream metrics
	eventSubscribersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photosweep_event_subscribers",
			Help: "Number of active event stream subscribers",
		},
	)

	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photosweep_events_published_total",
			Help: "Total engine events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSessionStarted records a new load session.
func RecordSessionStarted() {
	sessionsStartedTotal.Inc()
}

// RecordSessionSuperseded records a session cancelled by a newer one.
func RecordSessionSuperseded() {
	sessionsSupersededTotal.Inc()
}

// RecordAssetsLoaded records materialized assets for a tier ("priority" or "background").
func RecordAssetsLoaded(tier string, count int) {
	assetsLoadedTotal.WithLabelValues(tier).Add(float64(count))
}

// RecordAssetLoadFailure records a per-asset resolution failure.
func RecordAssetLoadFailure() {
	assetLoadFailuresTotal.Inc()
}

// RecordPageFetch records a page fetch outcome.
func RecordPageFetch(ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	pageFetchesTotal.WithLabelValues(status).Inc()
}

// RecordDemotions records assets demoted by the memory governor.
func RecordDemotions(count int) {
	assetsDemotedTotal.Add(float64(count))
}

// SetLoadedAssets sets the current materialized asset count.
func SetLoadedAssets(count int) {
	loadedAssetsGauge.Set(float64(count))
}

// SetLedgerSize sets the current deletion ledger size.
func SetLedgerSize(count int) {
	ledgerSizeGauge.Set(float64(count))
}

// RecordCommit records a bulk delete commit outcome.
func RecordCommit(success bool, bytes int64) {
	status := "ok"
	if !success {
		status = "error"
	}
	deletesCommittedTotal.WithLabelValues(status).Inc()
	if success && bytes > 0 {
		bytesReclaimedTotal.Add(float64(bytes))
	}
}

// RecordProviderOp records a provider operation duration.
func RecordProviderOp(provider, operation string, duration time.Duration) {
	providerOpDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// SetEventSubscribers sets the current event subscriber count.
func SetEventSubscribers(count int64) {
	eventSubscribersGauge.Set(float64(count))
}

// RecordEventPublished records a published engine event.
func RecordEventPublished(eventType string) {
	eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// responseWriter captures the response status for metrics.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}
