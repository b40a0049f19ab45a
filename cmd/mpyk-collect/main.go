// mpyk-collect polls MPK Wrocław vehicle positions into daily CSV files,
// zips each finished day and optionally ships the archive to a Backblaze B2
// (or any S3-compatible) bucket.
//
// Configuration is layered: defaults, then the --config YAML file, then
// environment variables (B2_APP_KEY_ID, B2_APP_KEY, B2_BUCKET_NAME and the
// MPYK_* overrides), then flags and positional arguments.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mpyk/mpyk/internal/adapter"
	"github.com/mpyk/mpyk/internal/config"
	"github.com/mpyk/mpyk/pkg/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configFile  string
	logLevel    string
	logFormat   string
	metricsPort int
	bufferSize  int
	workers     int
	writeConfig string
}

func run(args []string) error {
	var f flags

	flagSet := pflag.NewFlagSet("mpyk-collect", pflag.ContinueOnError)
	flagSet.StringVarP(&f.configFile, "config", "c", "", "path to YAML configuration file")
	flagSet.StringVar(&f.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR")
	flagSet.StringVar(&f.logFormat, "log-format", "", "log format: text or json")
	flagSet.IntVar(&f.metricsPort, "metrics-port", 0, "port for /metrics and /health (0 disables)")
	flagSet.IntVar(&f.bufferSize, "buffer-size", 0, "buffered positions above which the next batch triggers a write")
	flagSet.IntVar(&f.workers, "workers", 0, "background workers for writes and archives")
	flagSet.StringVar(&f.writeConfig, "write-config", "", "write the effective configuration as YAML to this path and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	cfg, err := loadConfig(flagSet, &f)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if f.writeConfig != "" {
		return cfg.SaveToFile(f.writeConfig)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:  cfg.Global.LogLevel,
		Format: cfg.Global.LogFormat,
		Output: os.Stderr,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if cfg.UploadEnabled() {
		logger.Info("Bucket upload enabled",
			"bucket", cfg.Upload.Bucket,
			"endpoint", cfg.Upload.Endpoint,
			"key_id", cfg.Upload.KeyID,
			"key_length", len(cfg.Upload.Key))
	} else {
		logger.Warn("B2_BUCKET_NAME is not set, archives stay in the zip directory",
			"zip_dir", cfg.Storage.ZipDir)
	}

	a, err := adapter.New(cfg, adapter.Options{Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(fmt.Sprintf("Collecting positions every %ds into daily CSVs at %s",
		cfg.Collector.IntervalSeconds, cfg.Storage.CSVDir))
	return a.Run(ctx)
}

// loadConfig layers defaults, file, environment and command line
func loadConfig(flagSet *pflag.FlagSet, f *flags) (*config.Configuration, error) {
	cfg := config.NewDefault()

	if f.configFile != "" {
		if err := cfg.LoadFromFile(f.configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if flagSet.Changed("log-level") {
		cfg.Global.LogLevel = f.logLevel
	}
	if flagSet.Changed("log-format") {
		cfg.Global.LogFormat = f.logFormat
	}
	if flagSet.Changed("metrics-port") {
		cfg.Global.MetricsPort = f.metricsPort
	}
	if flagSet.Changed("buffer-size") {
		cfg.Storage.BufferSize = f.bufferSize
	}
	if flagSet.Changed("workers") {
		cfg.Workers.Count = f.workers
	}

	positional := flagSet.Args()
	switch len(positional) {
	case 0:
	case 3:
		interval, err := strconv.Atoi(positional[0])
		if err != nil {
			return nil, fmt.Errorf("interval_seconds must be an integer: %q", positional[0])
		}
		cfg.Collector.IntervalSeconds = interval
		cfg.Storage.CSVDir = positional[1]
		cfg.Storage.ZipDir = positional[2]
	default:
		return nil, fmt.Errorf("expected <interval_seconds> <csv_dir> <zip_dir>, got %d arguments", len(positional))
	}

	return cfg, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `mpyk-collect polls MPK Wrocław vehicle positions into daily CSV files.

Usage:
  mpyk-collect [flags] <interval_seconds> <csv_dir> <zip_dir>

Finished days are zipped into zip_dir. When B2_BUCKET_NAME is set the
archive is uploaded with B2_APP_KEY_ID and B2_APP_KEY and then removed.

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
