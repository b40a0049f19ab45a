package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/mpyk/mpyk/pkg/errors"
	"github.com/mpyk/mpyk/pkg/retry"
	"github.com/mpyk/mpyk/pkg/utils"
)

// MaxIntervalSeconds is the longest allowed pause between polls (one day)
const MaxIntervalSeconds = 86400

// Configuration represents the complete application configuration
type Configuration struct {
	Global    GlobalConfig    `yaml:"global"`
	Collector CollectorConfig `yaml:"collector"`
	Storage   StorageConfig   `yaml:"storage"`
	Workers   WorkersConfig   `yaml:"workers"`
	Upload    UploadConfig    `yaml:"upload"`
	Source    SourceConfig    `yaml:"source"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// CollectorConfig represents polling settings
type CollectorConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// StorageConfig represents local file settings
type StorageConfig struct {
	CSVDir     string `yaml:"csv_dir"`
	ZipDir     string `yaml:"zip_dir"`
	BufferSize int    `yaml:"buffer_size"`
}

// WorkersConfig represents background pool settings
type WorkersConfig struct {
	Count           int           `yaml:"count"`
	QueueSize       int           `yaml:"queue_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UploadConfig represents remote bucket settings. Upload is enabled iff
// Bucket is set.
type UploadConfig struct {
	Bucket         string `yaml:"bucket"`
	KeyID          string `yaml:"key_id"`
	Key            string `yaml:"key"`
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	StorageClass   string `yaml:"storage_class"`
	Cargoship      bool   `yaml:"cargoship"`
}

// SourceConfig represents the vehicle position API settings
type SourceConfig struct {
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	BusLines  []string      `yaml:"bus_lines"`
	TramLines []string      `yaml:"tram_lines"`
	// Retry bounds the attempts within one poll; failures past it wait for
	// the next interval
	Retry retry.Config `yaml:"retry"`
}

// DefaultTramLines are the tram lines polled when none are configured
var DefaultTramLines = []string{
	"0l", "0p", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11",
	"15", "16", "17", "18", "19", "20", "21", "22", "23", "31", "33",
}

// DefaultBusLines are the bus lines polled when none are configured
var DefaultBusLines = []string{
	"a", "c", "d", "k", "n",
	"100", "101", "102", "103", "104", "105", "106", "107", "108", "109",
	"110", "111", "112", "113", "114", "115", "116", "118", "119", "120",
	"121", "122", "125", "126", "127", "128", "129", "130", "131", "132",
	"133", "134", "136", "140", "141", "142", "143", "144", "145", "146",
	"147", "148", "149", "150", "151", "206", "240", "241", "242", "243",
	"245", "246", "247", "248", "249", "250", "251", "253", "255", "257",
	"259", "315", "319", "602", "607", "612", "715", "914", "920",
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFormat:   "text",
			MetricsPort: 9100,
		},
		Collector: CollectorConfig{
			IntervalSeconds: 10,
		},
		Storage: StorageConfig{
			BufferSize: 5000,
		},
		Workers: WorkersConfig{
			Count:     1,
			QueueSize: 64,
		},
		Upload: UploadConfig{
			Endpoint:       "https://s3.us-west-001.backblazeb2.com",
			Region:         "us-west-001",
			ForcePathStyle: true,
			StorageClass:   "STANDARD",
		},
		Source: SourceConfig{
			URL:       "https://mpk.wroc.pl/bus_position",
			Timeout:   10 * time.Second,
			BusLines:  append([]string(nil), DefaultBusLines...),
			TramLines: append([]string(nil), DefaultTramLines...),
			Retry:     retry.DefaultConfig(),
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Bucket credentials
	if val := os.Getenv("B2_APP_KEY_ID"); val != "" {
		c.Upload.KeyID = val
	}
	if val := os.Getenv("B2_APP_KEY"); val != "" {
		c.Upload.Key = val
	}
	if val := os.Getenv("B2_BUCKET_NAME"); val != "" {
		c.Upload.Bucket = val
	}
	if val := os.Getenv("MPYK_S3_ENDPOINT"); val != "" {
		c.Upload.Endpoint = val
	}
	if val := os.Getenv("MPYK_S3_REGION"); val != "" {
		c.Upload.Region = val
	}

	// Global settings
	if val := os.Getenv("MPYK_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("MPYK_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}

	ints := []struct {
		name   string
		target *int
	}{
		{"MPYK_METRICS_PORT", &c.Global.MetricsPort},
		{"MPYK_BUFFER_SIZE", &c.Storage.BufferSize},
		{"MPYK_WORKERS", &c.Workers.Count},
	}
	for _, v := range ints {
		val := os.Getenv(v.name)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid integer in environment").
				WithContext("variable", v.name)
		}
		*v.target = n
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// UploadEnabled reports whether archives are shipped to a bucket
func (c *Configuration) UploadEnabled() bool {
	return c.Upload.Bucket != ""
}

// Interval returns the polling interval
func (c *Configuration) Interval() time.Duration {
	return time.Duration(c.Collector.IntervalSeconds) * time.Second
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.NewError(errors.ErrCodeInvalidConfig, fmt.Sprintf(format, args...)).
			WithComponent("config").WithOperation("validate")
	}

	if c.Collector.IntervalSeconds <= 0 {
		return invalid("interval_seconds (%d) must be greater than 0", c.Collector.IntervalSeconds)
	}
	if c.Collector.IntervalSeconds > MaxIntervalSeconds {
		return invalid("interval_seconds (%d) must not exceed %d (1 day)", c.Collector.IntervalSeconds, MaxIntervalSeconds)
	}

	if c.Storage.CSVDir == "" {
		return errors.NewError(errors.ErrCodeMissingConfig, "csv_dir is required").WithComponent("config")
	}
	if err := utils.EnsureDir(c.Storage.CSVDir); err != nil {
		return invalid("csv_dir: %v", err)
	}
	if c.Storage.ZipDir == "" {
		return errors.NewError(errors.ErrCodeMissingConfig, "zip_dir is required").WithComponent("config")
	}
	if err := utils.EnsureDir(c.Storage.ZipDir); err != nil {
		return invalid("zip_dir: %v", err)
	}
	if c.Storage.BufferSize <= 0 {
		return invalid("buffer_size must be greater than 0")
	}

	if c.Workers.Count <= 0 {
		return invalid("workers.count must be greater than 0")
	}
	if c.Workers.QueueSize <= 0 {
		return invalid("workers.queue_size must be greater than 0")
	}
	if c.Workers.ShutdownTimeout < 0 {
		return invalid("workers.shutdown_timeout must not be negative")
	}

	if c.Global.MetricsPort < 0 || c.Global.MetricsPort > 65535 {
		return invalid("invalid metrics_port: %d", c.Global.MetricsPort)
	}
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil || c.Global.LogLevel == "" {
		return invalid("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if _, err := utils.ParseLogFormat(c.Global.LogFormat); err != nil {
		return invalid("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	if c.Source.URL == "" {
		return errors.NewError(errors.ErrCodeMissingConfig, "source.url is required").WithComponent("config")
	}
	if len(c.Source.BusLines) == 0 && len(c.Source.TramLines) == 0 {
		return invalid("at least one bus or tram line is required")
	}
	if c.Source.Retry.MaxAttempts < 0 {
		return invalid("source.retry.max_attempts must not be negative")
	}

	if c.UploadEnabled() && (c.Upload.KeyID == "" || c.Upload.Key == "") {
		return errors.NewError(errors.ErrCodeCredentialsMissing, "bucket is set but key_id or key is missing").
			WithComponent("config").WithContext("bucket", c.Upload.Bucket)
	}

	return nil
}
