package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the instruments exported on /metrics.
type Metrics struct {
	DetectionsTotal     *prometheus.CounterVec
	SuppressedTotal     *prometheus.CounterVec
	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	EngineCrashes       prometheus.Counter
	EngineStarts        prometheus.Counter
	EventDrops          prometheus.Counter
	ListenerState       prometheus.Gauge
	NotifyFailures      prometheus.Counter
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all instruments on reg and returns them. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DetectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safeword_detections_total",
			Help: "Total wake-phrase detections, by trigger kind",
		}, []string{"kind"}),
		SuppressedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safeword_suppressed_total",
			Help: "Detections that did not start a run, by reason",
		}, []string{"reason"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safeword_runs_total",
			Help: "Finished action runs, by outcome",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "safeword_run_duration_seconds",
			Help:    "Wall time of the record-encrypt-notify-log sequence",
			Buckets: prometheus.DefBuckets,
		}),
		EngineCrashes: factory.NewCounter(prometheus.CounterOpts{
			Name: "safeword_engine_crashes_total",
			Help: "Unexpected wake-word engine exits",
		}),
		EngineStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "safeword_engine_starts_total",
			Help: "Successful engine launches",
		}),
		EventDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "safeword_event_drops_total",
			Help: "Detection events dropped on full subscriber buffers",
		}),
		ListenerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "safeword_listener_up",
			Help: "1 while the listener is in the listening state",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "safeword_notify_failures_total",
			Help: "Contact notification attempts that failed",
		}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safeword_http_request_duration_seconds",
			Help:    "HTTP handler latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
	}
}
