package s3

import (
	"log/slog"
	"sync"
	"time"
)

// BackendMetrics tracks bucket upload metrics
type BackendMetrics struct {
	Requests       int64         `json:"requests"`
	Errors         int64         `json:"errors"`
	BytesUploaded  int64         `json:"bytes_uploaded"`
	AverageLatency time.Duration `json:"average_latency"`
	LastError      string        `json:"last_error"`
	LastErrorTime  time.Time     `json:"last_error_time"`

	// Uploads that went through the CargoShip transporter, and those that
	// fell back to PutObject after it failed
	CargoShipUploads int64 `json:"cargoship_uploads"`
	FallbackEvents   int64 `json:"fallback_events"`
}

// MetricsCollector aggregates metrics across the buckets of one factory
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics BackendMetrics
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordMetrics records operation metrics with duration and error status
func (mc *MetricsCollector) RecordMetrics(duration time.Duration, isError bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.metrics.Requests++
	if isError {
		mc.metrics.Errors++
	}

	// Rolling average latency
	if mc.metrics.Requests == 1 {
		mc.metrics.AverageLatency = duration
	} else {
		mc.metrics.AverageLatency = time.Duration(
			(int64(mc.metrics.AverageLatency)*9 + int64(duration)) / 10,
		)
	}
}

// RecordError records an error occurrence
func (mc *MetricsCollector) RecordError(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.metrics.LastError = err.Error()
	mc.metrics.LastErrorTime = time.Now()
}

// RecordBytesUploaded records uploaded bytes
func (mc *MetricsCollector) RecordBytesUploaded(bytes int64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.BytesUploaded += bytes
}

// RecordCargoShipUpload records a successful transporter upload
func (mc *MetricsCollector) RecordCargoShipUpload() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.CargoShipUploads++
}

// RecordFallbackEvent records a transporter failure followed by PutObject
func (mc *MetricsCollector) RecordFallbackEvent() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.FallbackEvents++
}

// GetMetrics returns a copy of the current metrics
func (mc *MetricsCollector) GetMetrics() BackendMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.metrics
}

// GetErrorRate returns errors per request
func (mc *MetricsCollector) GetErrorRate() float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if mc.metrics.Requests == 0 {
		return 0
	}
	return float64(mc.metrics.Errors) / float64(mc.metrics.Requests)
}

// LogValue reports the counters as a log group
func (mc *MetricsCollector) LogValue() slog.Value {
	m := mc.GetMetrics()
	attrs := []slog.Attr{
		slog.Int64("requests", m.Requests),
		slog.Int64("errors", m.Errors),
		slog.Int64("bytes_uploaded", m.BytesUploaded),
		slog.Int64("cargoship_uploads", m.CargoShipUploads),
		slog.Int64("fallback_events", m.FallbackEvents),
		slog.Duration("average_latency", m.AverageLatency),
	}
	if m.LastError != "" {
		attrs = append(attrs, slog.String("last_error", m.LastError))
	}
	return slog.GroupValue(attrs...)
}
