package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for fetching, crawling and
// reconciliation.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ProductsListed    prometheus.Counter
	PagesTotal        prometheus.Counter
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	ReconcileOutcomes *prometheus.CounterVec
	ImageRepairs      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_requests_total",
			Help: "Total HTTP requests issued by the fetcher.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_request_duration_seconds",
			Help:    "HTTP request latency for fetcher requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	listed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_products_listed_total",
			Help: "Total listing records accepted by the collector.",
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_listing_pages_total",
			Help: "Total listing pages fetched.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_retries_total",
			Help: "Total number of retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_reconcile_products_total",
			Help: "Products processed by reconciliation by outcome.",
		},
		[]string{"outcome"},
	)
	repairs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_image_repairs_total",
			Help: "Image repairs applied by strategy.",
		},
		[]string{"strategy"},
	)

	registry.MustRegister(requests, requestDuration, listed, pages, retries, errorsTotal, outcomes, repairs)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ProductsListed:    listed,
		PagesTotal:        pages,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		ReconcileOutcomes: outcomes,
		ImageRepairs:      repairs,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddListed adds n accepted listing records.
func (m *Metrics) AddListed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ProductsListed.Add(float64(n))
}

// IncPages increments the listing pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncOutcome records one reconciled product (updated, failed, unchanged).
func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ReconcileOutcomes.WithLabelValues(outcome).Inc()
}

// AddRepairs records n image repairs for a strategy.
func (m *Metrics) AddRepairs(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ImageRepairs.WithLabelValues(strategy).Add(float64(n))
}
