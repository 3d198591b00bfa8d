package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spray_advisory"

// Metrics holds the Prometheus collectors for the advisory and scan core.
type Metrics struct {
	AdvisoriesIssued *prometheus.CounterVec // labels: state
	ScanSubmissions  *prometheus.CounterVec // labels: outcome={completed,queued,low_quality,quota_exceeded,error}

	// Offline queue.
	QueueDepth       prometheus.Gauge
	Deliveries       *prometheus.CounterVec // labels: result={delivered,retried,dropped}
	DrainDuration    prometheus.Histogram
	DrainsSkipped    prometheus.Counter
	ReconcileRunning prometheus.Gauge
	Online           prometheus.Gauge
	EventsPublished  *prometheus.CounterVec // labels: topic

	// Upstream providers.
	UpstreamRequests *prometheus.CounterVec   // labels: provider={weather,classifier,geocode}, outcome={success,error,empty}
	UpstreamDuration *prometheus.HistogramVec // labels: provider
	GeocodeCache     *prometheus.CounterVec   // labels: method={search,reverse}, result={hit,miss}
	GeocodeEnabled   prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.AdvisoriesIssued,
		m.ScanSubmissions,
		m.QueueDepth,
		m.Deliveries,
		m.DrainDuration,
		m.DrainsSkipped,
		m.ReconcileRunning,
		m.Online,
		m.EventsPublished,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.GeocodeCache,
		m.GeocodeEnabled,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		AdvisoriesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisories_total",
			Help:      "Spray advisories computed, by state.",
		}, []string{"state"}),
		ScanSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_submissions_total",
			Help:      "Scan submissions by outcome.",
		}, []string{"outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Scan submissions waiting in the offline queue.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_deliveries_total",
			Help:      "Queued delivery attempts by result.",
		}, []string{"result"}),
		DrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_drain_duration_seconds",
			Help:      "Duration of a complete queue drain.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		DrainsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_drains_skipped_total",
			Help:      "Drain requests ignored because a drain was already running.",
		}),
		ReconcileRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_running",
			Help:      "1 when the reconcile loop is active, 0 when shut down.",
		}),
		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the scan classifier is believed reachable.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events written to Kafka, by topic.",
		}, []string{"topic"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests to external providers by provider and outcome.",
		}, []string{"provider", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "External provider request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"provider"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when place search is enabled, 0 otherwise.",
		}),
	}
}
