package metrics

import (
	"context"
	stderr "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mpyk/mpyk/pkg/errors"
)

// Collector records collector, store and archive metrics
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *slog.Logger

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	errorCounter      *prometheus.CounterVec
	bufferGauge       prometheus.Gauge
	queueGauge        prometheus.Gauge

	// Internal tracking
	operations map[string]*OperationMetrics

	// HTTP server for metrics endpoint
	server   *http.Server
	listener net.Listener
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalSize     int64         `json:"total_size"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
	AvgSize       float64       `json:"avg_size"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config, logger *slog.Logger) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9100,
			Path:      "/metrics",
			Namespace: "mpyk",
			Labels:    make(map[string]string),
		}
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "metrics")

	if !config.Enabled {
		return &Collector{config: config, logger: logger}, nil
	}

	collector := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		logger:     logger,
		operations: make(map[string]*OperationMetrics),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Disabled returns a collector whose methods are no-ops
func Disabled() *Collector {
	c, _ := NewCollector(&Config{Enabled: false}, nil)
	return c
}

// Start starts the metrics HTTP server. A zero port leaves the server off.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled || c.config.Port == 0 {
		return nil
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on metrics port %d: %w", c.config.Port, err)
	}

	c.mu.Lock()
	c.listener = listener
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !stderr.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics server error", "error", err)
		}
	}()

	c.logger.Info("Metrics server started", "addr", listener.Addr().String(), "path", c.config.Path)
	return nil
}

// Addr returns the listening address once Start has run
func (c *Collector) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop stops the metrics HTTP server
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	server := c.server
	c.server = nil
	c.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the mux serving the metrics and health endpoints
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.registry != nil {
		mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	mux.HandleFunc("/health", c.healthHandler)
	return mux
}

// RecordOperation records an operation with its metrics
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	metrics, exists := c.operations[operation]
	if !exists {
		metrics = &OperationMetrics{}
		c.operations[operation] = metrics
	}
	metrics.Count++
	metrics.TotalDuration += duration
	metrics.TotalSize += size
	if !success {
		metrics.Errors++
	}
	metrics.LastOperation = time.Now()
	metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)
	metrics.AvgSize = float64(metrics.TotalSize) / float64(metrics.Count)

	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"status":    map[bool]string{true: "success", false: "error"}[success],
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": operation,
	}).Observe(duration.Seconds())

	if size > 0 {
		c.operationSize.With(prometheus.Labels{
			"operation": operation,
		}).Observe(float64(size))
	}
}

// RecordError records an error
func (c *Collector) RecordError(operation string, err error) {
	if !c.config.Enabled || err == nil {
		return
	}

	c.errorCounter.With(prometheus.Labels{
		"operation": operation,
		"type":      classifyError(err),
	}).Inc()
}

// UpdateBufferSize sets the number of positions held in memory
func (c *Collector) UpdateBufferSize(positions int) {
	if !c.config.Enabled {
		return
	}
	c.bufferGauge.Set(float64(positions))
}

// UpdateQueueDepth sets the number of queued background tasks
func (c *Collector) UpdateQueueDepth(tasks int) {
	if !c.config.Enabled {
		return
	}
	c.queueGauge.Set(float64(tasks))
}

// GetMetrics returns a copy of the per-operation counters
func (c *Collector) GetMetrics() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	operations := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		operations[k] = *v
	}
	return operations
}

// Registry exposes the underlying registry, nil when disabled
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) initMetrics() {
	constLabels := prometheus.Labels(c.config.Labels)

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "operations_total",
			Help:        "Total number of operations",
			ConstLabels: constLabels,
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "operation_duration_seconds",
			Help:        "Duration of operations in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)

	c.operationSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "operation_size_bytes",
			Help:        "Size of operations in bytes",
			Buckets:     prometheus.ExponentialBuckets(1024, 2, 20), // 1KB to ~1GB
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of errors",
			ConstLabels: constLabels,
		},
		[]string{"operation", "type"},
	)

	c.bufferGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "buffer_positions",
			Help:        "Positions held in memory awaiting flush",
			ConstLabels: constLabels,
		},
	)

	c.queueGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "queue_depth",
			Help:        "Background tasks waiting for a worker",
			ConstLabels: constLabels,
		},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.operationSize,
		c.errorCounter,
		c.bufferGauge,
		c.queueGauge,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// classifyError maps structured errors to their code and falls back to
// message heuristics for everything else
func classifyError(err error) string {
	if code := errors.GetCode(err); code != errors.ErrCodeInternalError {
		return strings.ToLower(string(code))
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "connection"):
		return "connection"
	case strings.Contains(errStr, "not found"):
		return "not_found"
	case strings.Contains(errStr, "permission"):
		return "permission"
	default:
		return "other"
	}
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"mpyk-collect"}`))
}
