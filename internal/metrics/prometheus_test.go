package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordConversion(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordConversionRequest()
	if got := testutil.ToFloat64(m.ConversionInFlight); got != 1 {
		t.Errorf("expected in-flight gauge 1, got %v", got)
	}

	m.RecordConversionSuccess(0.5, 2)
	m.RecordConversionRequest()
	m.RecordConversionFailure(1.5)

	if got := testutil.ToFloat64(m.ConversionRequests); got != 2 {
		t.Errorf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConversionSuccesses); got != 1 {
		t.Errorf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConversionFailures); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConversionInFlight); got != 0 {
		t.Errorf("expected in-flight gauge 0, got %v", got)
	}
}

func TestRecordRecording(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRecordingStarted()
	m.RecordRecordingStarted()
	m.RecordRecordingCompleted(12, 4096)
	m.RecordCaptureFailure()

	if got := testutil.ToFloat64(m.RecordingsStarted); got != 2 {
		t.Errorf("expected 2 started, got %v", got)
	}
	if got := testutil.ToFloat64(m.RecordingsCompleted); got != 1 {
		t.Errorf("expected 1 completed, got %v", got)
	}
	if got := testutil.ToFloat64(m.CaptureFailures); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordHTTPRequest("POST", "/v1/convert", "202", 0.01)

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/v1/convert", "202")); got != 1 {
		t.Errorf("expected 1 request, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRecordingStarted()
	m.RecordRecordingCompleted(1, 1)
	m.RecordCaptureFailure()
	m.RecordConversionRequest()
	m.RecordConversionSuccess(1, 1)
	m.RecordConversionFailure(1)
	m.RecordHTTPRequest("GET", "/", "200", 0)
}
