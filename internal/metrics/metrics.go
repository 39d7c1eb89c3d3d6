package metrics

import (
	"net/http"

	"animalcensus/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	FramesProcessed   prometheus.Counter
	Detections        *prometheus.CounterVec
	DetectionFailures prometheus.Counter
	SourceReadErrors  prometheus.Counter
	RollingFPS        prometheus.Gauge
	FrameLatency      prometheus.Histogram
	DetectionLatency  prometheus.Histogram

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "census_frames_processed_total",
			Help: "Frames that completed a pipeline cycle",
		}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "census_detections_total",
			Help: "Accepted detections by class",
		}, []string{"class"}),
		DetectionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "census_detection_failures_total",
			Help: "Frames where the detector failed or timed out",
		}),
		SourceReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "census_source_read_errors_total",
			Help: "Transient frame acquisition failures",
		}),
		RollingFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "census_rolling_fps",
			Help: "Frames per second over the rolling window",
		}),
		FrameLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "census_frame_processing_seconds",
			Help:    "Wall time of one pipeline cycle",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		DetectionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "census_detection_seconds",
			Help:    "Wall time spent in the detector",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.FramesProcessed,
		m.Detections,
		m.DetectionFailures,
		m.SourceReadErrors,
		m.RollingFPS,
		m.FrameLatency,
		m.DetectionLatency,
	)
	return m
}

// ObserveFrame records one completed cycle.
func (m *Metrics) ObserveFrame(counts models.FrameCount, perf models.PerformanceSample) {
	if m == nil {
		return
	}
	m.FramesProcessed.Inc()
	for class, n := range counts {
		if n > 0 {
			m.Detections.WithLabelValues(class).Add(float64(n))
		}
	}
	m.RollingFPS.Set(perf.RollingFPS)
	m.FrameLatency.Observe(perf.FrameProcessingMs / 1000)
	m.DetectionLatency.Observe(perf.DetectionMs / 1000)
}

func (m *Metrics) DetectionFailed() {
	if m == nil {
		return
	}
	m.DetectionFailures.Inc()
}

func (m *Metrics) SourceReadFailed() {
	if m == nil {
		return
	}
	m.SourceReadErrors.Inc()
}

// TelemetryStats is implemented by the telemetry sink.
type TelemetryStats interface {
	Written() uint64
	Dropped() uint64
	Failed() uint64
}

// WatchTelemetry exposes the sink counters as gauges read at scrape time.
func (m *Metrics) WatchTelemetry(s TelemetryStats) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "census_telemetry_written_total",
			Help: "Telemetry points persisted to the store",
		},
		func() float64 { return float64(s.Written()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "census_telemetry_dropped_total",
			Help: "Telemetry points dropped on queue overflow or shutdown",
		},
		func() float64 { return float64(s.Dropped()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "census_telemetry_failed_total",
			Help: "Telemetry points dropped after exhausting retries",
		},
		func() float64 { return float64(s.Failed()) },
	))
}

// WatchViewers exposes the number of connected websocket viewers.
func (m *Metrics) WatchViewers(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "census_active_viewers",
			Help: "Connected live viewers",
		},
		func() float64 { return float64(count()) },
	))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
