package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice studio.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Recording metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	CaptureFailures     prometheus.Counter
	RecordingDuration   prometheus.Histogram
	ClipSize            prometheus.Histogram

	// Conversion metrics
	ConversionRequests  prometheus.Counter
	ConversionSuccesses prometheus.Counter
	ConversionFailures  prometheus.Counter
	ConversionDuration  prometheus.Histogram
	ConversionResults   prometheus.Histogram
	ConversionInFlight  prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Recording metrics
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicestudio_recordings_started_total",
			Help: "Total number of recordings started",
		}),
		RecordingsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicestudio_recordings_completed_total",
			Help: "Total number of recordings finalized into a clip",
		}),
		CaptureFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicestudio_capture_failures_total",
			Help: "Total number of recordings aborted by a capture error",
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicestudio_recording_duration_seconds",
			Help:    "Elapsed time of finalized recordings",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9), // 1s to ~4 minutes
		}),
		ClipSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicestudio_clip_size_bytes",
			Help:    "Size of finalized clips in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~8MB
		}),

		// Conversion metrics
		ConversionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicestudio_conversion_requests_total",
			Help: "Total number of conversion requests sent",
		}),
		ConversionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicestudio_conversion_successes_total",
			Help: "Total number of successful conversion requests",
		}),
		ConversionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicestudio_conversion_failures_total",
			Help: "Total number of failed conversion requests",
		}),
		ConversionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicestudio_conversion_duration_seconds",
			Help:    "Duration of conversion round trips",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		}),
		ConversionResults: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicestudio_conversion_results",
			Help:    "Number of results returned per successful conversion",
			Buckets: prometheus.LinearBuckets(0, 1, 5),
		}),
		ConversionInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicestudio_conversion_in_flight",
			Help: "1 while a conversion request is outstanding",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicestudio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicestudio_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordRecordingStarted increments the recordings started counter
func (m *Metrics) RecordRecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

// RecordRecordingCompleted records a finalized clip
func (m *Metrics) RecordRecordingCompleted(durationSeconds float64, sizeBytes int64) {
	if m == nil {
		return
	}
	m.RecordingsCompleted.Inc()
	m.RecordingDuration.Observe(durationSeconds)
	m.ClipSize.Observe(float64(sizeBytes))
}

// RecordCaptureFailure increments the capture failures counter
func (m *Metrics) RecordCaptureFailure() {
	if m == nil {
		return
	}
	m.CaptureFailures.Inc()
}

// RecordConversionRequest marks a conversion as in flight
func (m *Metrics) RecordConversionRequest() {
	if m == nil {
		return
	}
	m.ConversionRequests.Inc()
	m.ConversionInFlight.Set(1)
}

// RecordConversionSuccess records a successful conversion
func (m *Metrics) RecordConversionSuccess(durationSeconds float64, results int) {
	if m == nil {
		return
	}
	m.ConversionSuccesses.Inc()
	m.ConversionDuration.Observe(durationSeconds)
	m.ConversionResults.Observe(float64(results))
	m.ConversionInFlight.Set(0)
}

// RecordConversionFailure records a failed conversion
func (m *Metrics) RecordConversionFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ConversionFailures.Inc()
	m.ConversionDuration.Observe(durationSeconds)
	m.ConversionInFlight.Set(0)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
