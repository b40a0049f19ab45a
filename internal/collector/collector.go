// Package collector drives the poll-buffer loop.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mpyk/mpyk/pkg/errors"
	"github.com/mpyk/mpyk/pkg/types"
)

// DefaultInterval is the pause between polls
const DefaultInterval = 10 * time.Second

// Sink accepts fetched batches
type Sink interface {
	Add(positions []types.Position) error
}

// Config contains collector configuration
type Config struct {
	Interval time.Duration
}

// Collector polls a PositionSource and hands every batch to a Sink
type Collector struct {
	source  types.PositionSource
	sink    Sink
	config  Config
	logger  *slog.Logger
	metrics types.MetricsCollector

	mu      sync.Mutex
	running bool
	wake    chan struct{}
	done    chan struct{}
}

// New creates a stopped collector
func New(source types.PositionSource, sink Sink, config Config, logger *slog.Logger, metrics types.MetricsCollector) (*Collector, error) {
	if source == nil || sink == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "source and sink are required").
			WithComponent("collector")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan struct{})
	close(done)

	return &Collector{
		source:  source,
		sink:    sink,
		config:  config,
		logger:  logger.With("component", "collector"),
		metrics: metrics,
		done:    done,
	}, nil
}

// Start runs the loop on the calling goroutine until Stop is called. It
// fails with ALREADY_STARTED if the loop is running.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.NewError(errors.ErrCodeAlreadyStarted, "collector is already running").
			WithComponent("collector").WithOperation("start")
	}
	c.running = true
	c.wake = make(chan struct{})
	c.done = make(chan struct{})
	wake, done := c.wake, c.done
	c.mu.Unlock()

	defer close(done)

	c.logger.Info("Collector started", "interval", c.config.Interval.String())
	for c.Running() {
		c.poll(ctx)

		if !c.Running() {
			break
		}
		select {
		case <-wake:
		case <-time.After(c.config.Interval):
		}
	}
	c.logger.Info("Collector stopped")
	return nil
}

// Stop asks the loop to exit after the current iteration. A pending sleep
// is cut short; an in-flight fetch or add is not.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.running = false
	close(c.wake)
	c.logger.Info("Stopping collector")
}

// Running reports whether the loop is active
func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Done is closed when the current loop has exited
func (c *Collector) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Collector) poll(ctx context.Context) {
	start := time.Now()
	positions, err := c.source.GetAllPositions(ctx)
	took := time.Since(start)

	if err != nil {
		if !errors.HasCode(err, errors.ErrCodeTransientFetch) {
			err = errors.Wrap(err, errors.ErrCodeTransientFetch, "failed to fetch positions").
				WithComponent("collector").WithOperation("fetch")
		}
		c.logger.Warn("Fetching positions failed, retrying next interval", "error", err)
		if c.metrics != nil {
			c.metrics.RecordOperation("fetch", took, 0, false)
			c.metrics.RecordError("fetch", err)
		}
		return
	}

	if c.metrics != nil {
		c.metrics.RecordOperation("fetch", took, int64(len(positions)), true)
	}
	c.logger.Info(fmt.Sprintf("Downloading %d positions took %.3fs", len(positions), took.Seconds()))

	if len(positions) == 0 {
		return
	}
	if err := c.sink.Add(positions); err != nil {
		c.logger.Error("Failed to store positions", "error", err, "positions", len(positions))
		if c.metrics != nil {
			c.metrics.RecordError("add", err)
		}
	}
}
