package adapter

import (
	"context"
	stderr "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mpyk/mpyk/internal/archive"
	"github.com/mpyk/mpyk/internal/collector"
	"github.com/mpyk/mpyk/internal/config"
	"github.com/mpyk/mpyk/internal/metrics"
	"github.com/mpyk/mpyk/internal/pool"
	"github.com/mpyk/mpyk/internal/source/mpk"
	"github.com/mpyk/mpyk/internal/storage/s3"
	"github.com/mpyk/mpyk/internal/store"
	"github.com/mpyk/mpyk/pkg/errors"
	"github.com/mpyk/mpyk/pkg/types"
)

// Options overrides the components New would otherwise build from the
// configuration
type Options struct {
	Source types.PositionSource
	Bucket types.BucketFactory
	Logger *slog.Logger
	// Now is the clock for the store's initial chunk date
	Now func() time.Time
}

// Adapter owns every component of the collector process
type Adapter struct {
	config  *config.Configuration
	logger  *slog.Logger
	metrics *metrics.Collector

	pool      *pool.Pool
	archiver  *archive.Archiver
	store     *store.Store
	collector *collector.Collector
	// s3 is set when New built the bucket itself and can health check it
	s3 *s3.Factory

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stopErr  error
}

// New validates cfg and wires the pool, archiver, store and collector
func New(cfg *config.Configuration, opts Options) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "configuration is required").
			WithComponent("adapter")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		config: cfg,
		logger: logger.With("component", "adapter"),
	}

	m, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      cfg.Global.MetricsPort,
		Path:      "/metrics",
		Namespace: "mpyk",
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}
	a.metrics = m

	source := opts.Source
	if source == nil {
		client, err := mpk.NewClient(mpk.Config{
			URL:       cfg.Source.URL,
			Timeout:   cfg.Source.Timeout,
			BusLines:  cfg.Source.BusLines,
			TramLines: cfg.Source.TramLines,
			Retry:     cfg.Source.Retry,
		}, logger)
		if err != nil {
			return nil, err
		}
		source = client
	}

	bucket := opts.Bucket
	if bucket == nil && cfg.UploadEnabled() {
		factory, err := s3.NewFactory(bucketConfig(cfg), logger)
		if err != nil {
			return nil, err
		}
		a.s3 = factory
		bucket = factory.Open
	}

	a.pool = pool.New(pool.Config{
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
	}, logger, m)

	a.archiver, err = archive.New(archive.Config{
		ZipDir: cfg.Storage.ZipDir,
		Upload: cfg.UploadEnabled(),
	}, a.pool, bucket, logger, m)
	if err != nil {
		return nil, a.abort(err)
	}

	a.store, err = store.New(store.Config{
		CSVDir:     cfg.Storage.CSVDir,
		BufferSize: cfg.Storage.BufferSize,
		Now:        opts.Now,
	}, a.pool, a.archiver, logger, m)
	if err != nil {
		return nil, a.abort(err)
	}

	a.collector, err = collector.New(source, a.store, collector.Config{
		Interval: cfg.Interval(),
	}, logger, m)
	if err != nil {
		return nil, a.abort(err)
	}

	return a, nil
}

// Start checks the bucket, starts the metrics server and launches the
// collection loop. It returns once the loop is running.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "adapter is already started").
			WithComponent("adapter").WithOperation("start")
	}

	a.logger.Info("Starting mpyk collector",
		"interval", a.config.Interval().String(),
		"csv_dir", a.config.Storage.CSVDir,
		"zip_dir", a.config.Storage.ZipDir,
		"upload", a.config.UploadEnabled(),
		"workers", a.config.Workers.Count)

	if a.s3 != nil {
		bucket, err := a.s3.Bucket(ctx)
		if err != nil {
			return err
		}
		if err := bucket.HealthCheck(ctx); err != nil {
			return errors.Wrap(err, errors.ErrCodeUpload, "bucket is not reachable").
				WithComponent("adapter").WithOperation("start").WithContext("bucket", bucket.Name())
		}
		a.logger.Info("Bucket reachable", "bucket", bucket.Name())
	}

	if err := a.metrics.Start(ctx); err != nil {
		return err
	}

	// The loop outlives ctx; Stop ends it so in-flight fetches can finish.
	loopCtx := context.WithoutCancel(ctx)
	loopErr := make(chan error, 1)
	go func() {
		err := a.collector.Start(loopCtx)
		if err != nil {
			a.logger.Error("Collector exited", "error", err)
		}
		loopErr <- err
	}()

	// Stop must not race the loop's startup
	for !a.collector.Running() {
		select {
		case err := <-loopErr:
			return fmt.Errorf("collector exited during startup: %w", err)
		case <-time.After(time.Millisecond):
		}
	}

	a.started = true
	return nil
}

// Stop shuts down in order: the loop, the buffer, the pool, the metrics
// server. Every queued write and archive task runs to completion. When
// Workers.ShutdownTimeout is set it bounds the wait for the pool.
func (a *Adapter) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.stopErr = a.stop(ctx)
	})
	return a.stopErr
}

func (a *Adapter) stop(ctx context.Context) error {
	start := time.Now()
	a.logger.Info("Stopping mpyk collector")

	var errs []error

	a.collector.Stop()
	select {
	case <-a.collector.Done():
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("collector did not stop: %w", ctx.Err()))
	}

	if err := a.store.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("final flush failed: %w", err))
	}

	poolCtx := ctx
	if timeout := a.config.Workers.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		poolCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := a.pool.Shutdown(poolCtx); err != nil {
		errs = append(errs, err)
	}

	if err := a.metrics.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metrics server shutdown failed: %w", err))
	}

	if a.s3 != nil {
		a.logger.Info("Bucket upload totals", "bucket", a.s3.Metrics())
	}

	stats := a.pool.Stats()
	a.logger.Info(fmt.Sprintf("Shutdown took %.3fs", time.Since(start).Seconds()),
		"tasks_completed", stats.Completed,
		"tasks_failed", stats.Failed,
		"tasks_pending", stats.Pending)

	return stderr.Join(errs...)
}

// Run starts the adapter and blocks until ctx is done, then stops it
func (a *Adapter) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.WithoutCancel(ctx))
		return err
	}
	<-ctx.Done()
	return a.Stop(context.WithoutCancel(ctx))
}

// Store returns the position store
func (a *Adapter) Store() *store.Store {
	return a.store
}

// PoolStats returns the background pool counters
func (a *Adapter) PoolStats() pool.Stats {
	return a.pool.Stats()
}

// Metrics returns the metrics collector
func (a *Adapter) Metrics() *metrics.Collector {
	return a.metrics
}

// abort releases the pool workers when construction fails midway
func (a *Adapter) abort(err error) error {
	_ = a.pool.Shutdown(context.Background())
	return err
}

func bucketConfig(cfg *config.Configuration) *s3.Config {
	bc := s3.NewDefaultConfig()
	bc.Bucket = cfg.Upload.Bucket
	bc.AccessKeyID = cfg.Upload.KeyID
	bc.SecretAccessKey = cfg.Upload.Key
	bc.ForcePathStyle = cfg.Upload.ForcePathStyle
	bc.EnableCargoShipOptimization = cfg.Upload.Cargoship
	if cfg.Upload.Endpoint != "" {
		bc.Endpoint = cfg.Upload.Endpoint
	}
	if cfg.Upload.Region != "" {
		bc.Region = cfg.Upload.Region
	}
	if cfg.Upload.StorageClass != "" {
		bc.StorageTier = cfg.Upload.StorageClass
	}
	return bc
}
