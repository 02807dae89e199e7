package observability

import (
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the rental API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	uploadedBytes   *prometheus.CounterVec
	propertyViews   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rental_request_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rental_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rental_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rental_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rental_uploads_total",
				Help: "Uploads that reached a terminal state.",
			},
			[]string{"kind", "state"},
		),
		uploadedBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rental_uploaded_bytes_total",
				Help: "Bytes written to object storage.",
			},
			[]string{"kind"},
		),
		propertyViews: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rental_property_views_total",
				Help: "Property view-count increments by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordUpload counts an upload that finished in the given state.
// kind is "image" for single-shot puts and "media" for multipart uploads.
func (m *Metrics) RecordUpload(kind string, state domain.UploadState, bytes int64) {
	m.uploads.WithLabelValues(kind, string(state)).Inc()
	if state == domain.UploadCompleted && bytes > 0 {
		m.uploadedBytes.WithLabelValues(kind).Add(float64(bytes))
	}
}

// IncrPropertyView counts a view-count increment ("ok", "error", "dropped").
func (m *Metrics) IncrPropertyView(outcome string) {
	m.propertyViews.WithLabelValues(outcome).Inc()
}

// Snapshot returns the counters served by GET /api/admin/metrics.
func (m *Metrics) Snapshot() *domain.ServiceMetrics {
	completed := getCounterValue(m.uploads, "media", string(domain.UploadCompleted)) +
		getCounterValue(m.uploads, "image", string(domain.UploadCompleted))
	failed := getCounterValue(m.uploads, "media", string(domain.UploadFailed)) +
		getCounterValue(m.uploads, "image", string(domain.UploadFailed))

	hits := getCounterValue(m.cacheHits, "homepage")
	misses := getCounterValue(m.cacheMisses, "homepage")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.ServiceMetrics{
		UploadsCompleted: completed,
		UploadsFailed:    failed,
		UploadsCancelled: getCounterValue(m.uploads, "media", string(domain.UploadCancelled)),
		UploadedBytes:    getCounterValue(m.uploadedBytes, "image") + getCounterValue(m.uploadedBytes, "media"),
		PropertyViews:    getCounterValue(m.propertyViews, "ok"),
		ViewsDropped:     getCounterValue(m.propertyViews, "dropped"),
		ExternalErrors: getCounterValue(m.externalErrors, "supabase") +
			getCounterValue(m.externalErrors, "storage") +
			getCounterValue(m.externalErrors, "wechat"),
		CacheHitRate: hitRate,
		Period:       "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
