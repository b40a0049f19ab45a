package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mpyk/mpyk/pkg/errors"
)

// Test Constants
const (
	TestDebugLevel = "DEBUG"
	TestBucketName = "mpyk-test"
)

func validConfig(t *testing.T) *Configuration {
	t.Helper()
	cfg := NewDefault()
	cfg.Storage.CSVDir = t.TempDir()
	cfg.Storage.ZipDir = t.TempDir()
	return cfg
}

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.MetricsPort != 9100 {
		t.Errorf("Expected MetricsPort to be 9100, got %d", cfg.Global.MetricsPort)
	}
	if cfg.Collector.IntervalSeconds != 10 {
		t.Errorf("Expected IntervalSeconds to be 10, got %d", cfg.Collector.IntervalSeconds)
	}
	if cfg.Storage.BufferSize != 5000 {
		t.Errorf("Expected BufferSize to be 5000, got %d", cfg.Storage.BufferSize)
	}
	if cfg.Workers.Count != 1 {
		t.Errorf("Expected one worker, got %d", cfg.Workers.Count)
	}
	if cfg.Upload.Endpoint != "https://s3.us-west-001.backblazeb2.com" {
		t.Errorf("Unexpected default endpoint %s", cfg.Upload.Endpoint)
	}
	if cfg.UploadEnabled() {
		t.Error("Expected upload to be disabled by default")
	}
	if cfg.Interval() != 10*time.Second {
		t.Errorf("Expected 10s interval, got %v", cfg.Interval())
	}
	if len(cfg.Source.TramLines) == 0 || len(cfg.Source.BusLines) == 0 {
		t.Error("Expected default line lists")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(cfg *Configuration)
		wantErr  bool
		wantCode errors.ErrorCode
		errMsg   string
	}{
		{
			name:   "valid config",
			mutate: func(cfg *Configuration) {},
		},
		{
			name:     "zero interval",
			mutate:   func(cfg *Configuration) { cfg.Collector.IntervalSeconds = 0 },
			wantErr:  true,
			wantCode: errors.ErrCodeInvalidConfig,
			errMsg:   "greater than 0",
		},
		{
			name:     "interval longer than a day",
			mutate:   func(cfg *Configuration) { cfg.Collector.IntervalSeconds = MaxIntervalSeconds + 1 },
			wantErr:  true,
			wantCode: errors.ErrCodeInvalidConfig,
			errMsg:   "1 day",
		},
		{
			name:   "interval of exactly a day",
			mutate: func(cfg *Configuration) { cfg.Collector.IntervalSeconds = MaxIntervalSeconds },
		},
		{
			name:     "missing csv dir",
			mutate:   func(cfg *Configuration) { cfg.Storage.CSVDir = "" },
			wantErr:  true,
			wantCode: errors.ErrCodeMissingConfig,
		},
		{
			name:     "nonexistent zip dir",
			mutate:   func(cfg *Configuration) { cfg.Storage.ZipDir = filepath.Join(cfg.Storage.ZipDir, "nope") },
			wantErr:  true,
			wantCode: errors.ErrCodeInvalidConfig,
			errMsg:   "zip_dir",
		},
		{
			name:     "zero buffer size",
			mutate:   func(cfg *Configuration) { cfg.Storage.BufferSize = 0 },
			wantErr:  true,
			wantCode: errors.ErrCodeInvalidConfig,
		},
		{
			name:     "zero workers",
			mutate:   func(cfg *Configuration) { cfg.Workers.Count = 0 },
			wantErr:  true,
			wantCode: errors.ErrCodeInvalidConfig,
		},
		{
			name:     "invalid log level",
			mutate:   func(cfg *Configuration) { cfg.Global.LogLevel = "INVALID" },
			wantErr:  true,
			wantCode: errors.ErrCodeInvalidConfig,
			errMsg:   "invalid log_level",
		},
		{
			name:     "invalid log format",
			mutate:   func(cfg *Configuration) { cfg.Global.LogFormat = "xml" },
			wantErr:  true,
			wantCode: errors.ErrCodeInvalidConfig,
		},
		{
			name:     "bucket without credentials",
			mutate:   func(cfg *Configuration) { cfg.Upload.Bucket = TestBucketName },
			wantErr:  true,
			wantCode: errors.ErrCodeCredentialsMissing,
		},
		{
			name: "bucket with credentials",
			mutate: func(cfg *Configuration) {
				cfg.Upload.Bucket = TestBucketName
				cfg.Upload.KeyID = "id"
				cfg.Upload.Key = "secret"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if !errors.HasCode(err, tt.wantCode) {
					t.Errorf("Expected code %s, got %s (%v)", tt.wantCode, errors.GetCode(err), err)
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Expected error message to contain '%s', got '%s'", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
global:
  log_level: DEBUG
  log_format: json
  metrics_port: 0
collector:
  interval_seconds: 30
storage:
  csv_dir: /data/csv
  zip_dir: /data/zip
  buffer_size: 100
workers:
  count: 2
  shutdown_timeout: 1m
upload:
  bucket: mpyk-test
  storage_class: STANDARD_IA
source:
  tram_lines: ["33"]
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(configFile); err != nil {
		t.Fatalf("Failed to load config from file: %v", err)
	}

	if cfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.LogFormat != "json" {
		t.Errorf("Expected LogFormat to be json, got %s", cfg.Global.LogFormat)
	}
	if cfg.Global.MetricsPort != 0 {
		t.Errorf("Expected MetricsPort to be 0, got %d", cfg.Global.MetricsPort)
	}
	if cfg.Collector.IntervalSeconds != 30 {
		t.Errorf("Expected IntervalSeconds to be 30, got %d", cfg.Collector.IntervalSeconds)
	}
	if cfg.Storage.CSVDir != "/data/csv" || cfg.Storage.ZipDir != "/data/zip" {
		t.Errorf("Unexpected storage dirs %s %s", cfg.Storage.CSVDir, cfg.Storage.ZipDir)
	}
	if cfg.Workers.Count != 2 {
		t.Errorf("Expected 2 workers, got %d", cfg.Workers.Count)
	}
	if cfg.Workers.QueueSize != 64 {
		t.Errorf("Expected default queue size to survive, got %d", cfg.Workers.QueueSize)
	}
	if cfg.Workers.ShutdownTimeout != time.Minute {
		t.Errorf("Expected 1m shutdown timeout, got %v", cfg.Workers.ShutdownTimeout)
	}
	if !cfg.UploadEnabled() {
		t.Error("Expected upload to be enabled")
	}
	if cfg.Upload.StorageClass != "STANDARD_IA" {
		t.Errorf("Expected STANDARD_IA, got %s", cfg.Upload.StorageClass)
	}
	if len(cfg.Source.TramLines) != 1 || cfg.Source.TramLines[0] != "33" {
		t.Errorf("Expected tram lines [33], got %v", cfg.Source.TramLines)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("global: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := cfg.LoadFromFile(bad); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("B2_APP_KEY_ID", "key-id")
	t.Setenv("B2_APP_KEY", "key")
	t.Setenv("B2_BUCKET_NAME", TestBucketName)
	t.Setenv("MPYK_LOG_LEVEL", TestDebugLevel)
	t.Setenv("MPYK_METRICS_PORT", "9999")
	t.Setenv("MPYK_BUFFER_SIZE", "250")
	t.Setenv("MPYK_WORKERS", "3")
	t.Setenv("MPYK_S3_ENDPOINT", "http://localhost:9000")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load config from env: %v", err)
	}

	if cfg.Upload.KeyID != "key-id" || cfg.Upload.Key != "key" || cfg.Upload.Bucket != TestBucketName {
		t.Errorf("Unexpected upload config %+v", cfg.Upload)
	}
	if !cfg.UploadEnabled() {
		t.Error("Expected upload to be enabled by B2_BUCKET_NAME")
	}
	if cfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel DEBUG, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.MetricsPort != 9999 {
		t.Errorf("Expected MetricsPort 9999, got %d", cfg.Global.MetricsPort)
	}
	if cfg.Storage.BufferSize != 250 {
		t.Errorf("Expected BufferSize 250, got %d", cfg.Storage.BufferSize)
	}
	if cfg.Workers.Count != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.Workers.Count)
	}
	if cfg.Upload.Endpoint != "http://localhost:9000" {
		t.Errorf("Unexpected endpoint %s", cfg.Upload.Endpoint)
	}
}

func TestLoadFromEnv_InvalidInteger(t *testing.T) {
	t.Setenv("MPYK_BUFFER_SIZE", "lots")

	err := NewDefault().LoadFromEnv()
	if !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("Expected INVALID_CONFIG, got %v", err)
	}
}

func TestSaveToFile(t *testing.T) {
	cfg := NewDefault()
	cfg.Global.LogLevel = TestDebugLevel
	cfg.Storage.BufferSize = 42

	configFile := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := cfg.SaveToFile(configFile); err != nil {
		t.Fatalf("Failed to save config to file: %v", err)
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(configFile); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel DEBUG, got %s", loaded.Global.LogLevel)
	}
	if loaded.Storage.BufferSize != 42 {
		t.Errorf("Expected BufferSize 42, got %d", loaded.Storage.BufferSize)
	}
}
