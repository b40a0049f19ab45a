// Package pool runs persistence and archive work off the polling loop.
//
// Tasks are executed in submission order by a fixed set of workers. With a
// single worker (the default) that order is total; with more workers callers
// order dependent tasks explicitly through a Waiter.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mpyk/mpyk/pkg/errors"
	"github.com/mpyk/mpyk/pkg/types"
)

// Task is a unit of background work. Its error is logged, never returned
// to the submitter.
type Task func(ctx context.Context) error

// Submitter accepts background tasks
type Submitter interface {
	Submit(name string, task Task) error
}

// Waiter blocks until some prior work has completed. *sync.WaitGroup
// satisfies it.
type Waiter interface {
	Wait()
}

// Config contains pool configuration
type Config struct {
	Workers   int `yaml:"count"`
	QueueSize int `yaml:"queue_size"`
}

// Stats tracks pool statistics
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
	Pending   int   `json:"pending"`
	Queued    int   `json:"queued"`
}

type job struct {
	id       string
	name     string
	task     Task
	queuedAt time.Time
}

// Pool is a bounded FIFO task queue drained by a fixed number of workers
type Pool struct {
	config  Config
	logger  *slog.Logger
	metrics types.MetricsCollector

	// sendMu guards closed and the queue channel against send-after-close
	sendMu sync.RWMutex
	closed bool
	queue  chan *job

	// stateMu guards pending and idle
	stateMu sync.Mutex
	pending int
	idle    chan struct{}

	group   errgroup.Group
	stopped chan struct{}

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
}

// New creates a pool and starts its workers
func New(config Config, logger *slog.Logger, metrics types.MetricsCollector) *Pool {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	idle := make(chan struct{})
	close(idle)

	p := &Pool{
		config:  config,
		logger:  logger.With("component", "pool"),
		metrics: metrics,
		queue:   make(chan *job, config.QueueSize),
		idle:    idle,
		stopped: make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		p.group.Go(p.worker)
	}
	go func() {
		_ = p.group.Wait()
		close(p.stopped)
	}()

	return p
}

// Submit enqueues a task. It blocks while the queue is full and fails with
// COMPONENT_STOPPED once Shutdown has begun.
func (p *Pool) Submit(name string, task Task) error {
	if task == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "task cannot be nil").
			WithComponent("pool").WithOperation("submit")
	}

	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	if p.closed {
		return errors.NewError(errors.ErrCodeComponentStopped, "pool is shut down").
			WithComponent("pool").WithOperation("submit").WithContext("task", name)
	}

	j := &job{
		id:       uuid.NewString(),
		name:     name,
		task:     task,
		queuedAt: time.Now(),
	}

	p.markPending()
	p.submitted.Add(1)
	p.queue <- j
	p.reportQueueDepth()

	p.logger.Debug("Task submitted", "task", name, "task_id", j.id)
	return nil
}

// Drain waits until every submitted task has finished. It does not stop
// intake.
func (p *Pool) Drain(ctx context.Context) error {
	p.stateMu.Lock()
	idle := p.idle
	p.stateMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain interrupted: %w", ctx.Err())
	}
}

// Shutdown stops intake and waits for the workers to finish every task
// already queued. In-flight tasks are never cancelled; ctx only bounds how
// long the caller waits.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.sendMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
		p.logger.Debug("Pool closed to new tasks", "queued", len(p.queue))
	}
	p.sendMu.Unlock()

	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown interrupted with %d tasks pending: %w", p.Stats().Pending, ctx.Err())
	}
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	p.stateMu.Lock()
	pending := p.pending
	p.stateMu.Unlock()

	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
		Pending:   pending,
		Queued:    len(p.queue),
	}
}

func (p *Pool) worker() error {
	for j := range p.queue {
		p.reportQueueDepth()
		p.run(j)
	}
	return nil
}

func (p *Pool) run(j *job) {
	defer p.markDone()

	logger := p.logger.With("task", j.name, "task_id", j.id)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.failed.Add(1)
			err := errors.NewError(errors.ErrCodePanicRecovered, fmt.Sprintf("task panicked: %v", r)).
				WithComponent("pool").WithOperation(j.name)
			logger.Error("Background task panicked", "error", err)
			if p.metrics != nil {
				p.metrics.RecordError(j.name, err)
			}
		}
	}()

	logger.Debug("Task started", "waited", time.Since(j.queuedAt).String())

	// Tasks are not cancelled by shutdown.
	if err := j.task(context.Background()); err != nil {
		p.failed.Add(1)
		logger.Error("Background task failed", "error", err, "took", seconds(time.Since(start)))
		if p.metrics != nil {
			p.metrics.RecordError(j.name, err)
		}
		return
	}

	p.completed.Add(1)
	logger.Debug("Task finished", "took", seconds(time.Since(start)))
}

func (p *Pool) markPending() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.pending == 0 {
		p.idle = make(chan struct{})
	}
	p.pending++
}

func (p *Pool) markDone() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	p.pending--
	if p.pending == 0 {
		close(p.idle)
	}
}

func (p *Pool) reportQueueDepth() {
	if p.metrics != nil {
		p.metrics.UpdateQueueDepth(len(p.queue))
	}
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
