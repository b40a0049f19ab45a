package metrics

import (
	"context"
	stderr "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mpyk/mpyk/pkg/errors"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	collector, err := NewCollector(&Config{Enabled: true, Namespace: "test"}, nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	return collector
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with valid config", func(t *testing.T) {
		config := &Config{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "mpyk",
			Subsystem: "test",
		}
		collector, err := NewCollector(config, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.config != config {
			t.Error("collector.config does not match input config")
		}
		if collector.registry == nil {
			t.Error("collector.registry is nil")
		}
		if collector.operations == nil {
			t.Error("collector.operations map is nil")
		}
	})

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil, nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Port != 9100 {
			t.Errorf("default port = %d, want 9100", collector.config.Port)
		}
		if collector.config.Path != "/metrics" {
			t.Errorf("default path = %q, want %q", collector.config.Path, "/metrics")
		}
		if collector.config.Namespace != "mpyk" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "mpyk")
		}
	})

	t.Run("with disabled config", func(t *testing.T) {
		collector := Disabled()
		if collector.registry != nil {
			t.Error("disabled collector should not have registry")
		}
	})
}

func TestRecordOperation(t *testing.T) {
	t.Parallel()

	t.Run("record successful operation", func(t *testing.T) {
		collector := newTestCollector(t)
		collector.RecordOperation("write", 100*time.Millisecond, 1024, true)

		op, exists := collector.GetMetrics()["write"]
		if !exists {
			t.Fatal("write operation not recorded")
		}
		if op.Count != 1 {
			t.Errorf("op.Count = %d, want 1", op.Count)
		}
		if op.TotalSize != 1024 {
			t.Errorf("op.TotalSize = %d, want 1024", op.TotalSize)
		}
		if op.Errors != 0 {
			t.Errorf("op.Errors = %d, want 0", op.Errors)
		}

		got := testutil.ToFloat64(collector.operationCounter.WithLabelValues("write", "success"))
		if got != 1 {
			t.Errorf("operations_total{write,success} = %v, want 1", got)
		}
	})

	t.Run("record multiple operations", func(t *testing.T) {
		collector := newTestCollector(t)
		collector.RecordOperation("upload", 100*time.Millisecond, 1000, true)
		collector.RecordOperation("upload", 200*time.Millisecond, 2000, true)
		collector.RecordOperation("upload", 300*time.Millisecond, 3000, false)

		op := collector.GetMetrics()["upload"]
		if op.Count != 3 {
			t.Errorf("op.Count = %d, want 3", op.Count)
		}
		if op.Errors != 1 {
			t.Errorf("op.Errors = %d, want 1", op.Errors)
		}
		if op.AvgDuration != 200*time.Millisecond {
			t.Errorf("op.AvgDuration = %v, want 200ms", op.AvgDuration)
		}
		if op.AvgSize != 2000 {
			t.Errorf("op.AvgSize = %.2f, want 2000", op.AvgSize)
		}

		failed := testutil.ToFloat64(collector.operationCounter.WithLabelValues("upload", "error"))
		if failed != 1 {
			t.Errorf("operations_total{upload,error} = %v, want 1", failed)
		}
	})

	t.Run("disabled collector ignores operations", func(t *testing.T) {
		collector := Disabled()
		collector.RecordOperation("write", 100*time.Millisecond, 1024, true)
		collector.RecordError("write", stderr.New("boom"))
		collector.UpdateBufferSize(5)
		collector.UpdateQueueDepth(5)

		if len(collector.GetMetrics()) != 0 {
			t.Error("disabled collector should not track operations")
		}
	})
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)
	collector.RecordError("compress", errors.NewError(errors.ErrCodeCompression, "zip failed"))
	collector.RecordError("compress", errors.NewError(errors.ErrCodeCompression, "zip failed again"))
	collector.RecordError("compress", nil)

	got := testutil.ToFloat64(collector.errorCounter.WithLabelValues("compress", "compression"))
	if got != 2 {
		t.Errorf("errors_total{compress,compression} = %v, want 2", got)
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		err          error
		expectedType string
	}{
		{"structured error", errors.NewError(errors.ErrCodeTransientFetch, "down"), "transient_fetch"},
		{"wrapped structured error", errors.Wrap(io.EOF, errors.ErrCodeUpload, "put"), "upload"},
		{"timeout error", stderr.New("operation timeout"), "timeout"},
		{"connection error", stderr.New("connection refused"), "connection"},
		{"not found error", stderr.New("file not found"), "not_found"},
		{"permission error", stderr.New("permission denied"), "permission"},
		{"other error", stderr.New("unknown error"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.expectedType {
				t.Errorf("classifyError() = %q, want %q", got, tt.expectedType)
			}
		})
	}
}

func TestGauges(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)
	collector.UpdateBufferSize(4999)
	collector.UpdateQueueDepth(3)

	if got := testutil.ToFloat64(collector.bufferGauge); got != 4999 {
		t.Errorf("buffer_positions = %v, want 4999", got)
	}
	if got := testutil.ToFloat64(collector.queueGauge); got != 3 {
		t.Errorf("queue_depth = %v, want 3", got)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)
	collector.RecordOperation("fetch", time.Second, 0, true)

	server := httptest.NewServer(collector.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), `test_operations_total{operation="fetch",status="success"} 1`) {
		t.Errorf("metrics output missing operations_total:\n%s", body)
	}

	resp, err = http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	t.Run("zero port keeps server off", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: true, Port: 0, Namespace: "test"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := collector.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if collector.Addr() != "" {
			t.Errorf("Addr() = %q, want empty", collector.Addr())
		}
		if err := collector.Stop(context.Background()); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})

	t.Run("disabled collector start is no-op", func(t *testing.T) {
		collector := Disabled()
		if err := collector.Start(context.Background()); err != nil {
			t.Errorf("Start() error = %v", err)
		}
		if err := collector.Stop(context.Background()); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
}
