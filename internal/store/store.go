// Package store buffers position batches in memory and persists them to
// one CSV file per UTC day.
package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mpyk/mpyk/internal/pool"
	"github.com/mpyk/mpyk/pkg/errors"
	"github.com/mpyk/mpyk/pkg/types"
)

// DefaultBufferSize is the number of buffered positions above which the
// next batch triggers a flush
const DefaultBufferSize = 5000

// Archiver schedules the compression and upload of a completed daily file.
// The archive work must not start before every Waiter in after returns.
type Archiver interface {
	Archive(csvFilePath string, after ...pool.Waiter) error
}

// Config contains store configuration
type Config struct {
	CSVDir     string
	BufferSize int
	// Now is the clock used for the initial chunk date
	Now func() time.Time
}

// Store holds the in-memory buffer for the current chunk date
type Store struct {
	config    Config
	submitter pool.Submitter
	archiver  Archiver
	logger    *slog.Logger
	metrics   types.MetricsCollector

	mu        sync.Mutex
	buffer    []types.Position
	chunkDate time.Time
	// writes tracks scheduled writes per daily file
	writes map[string]*sync.WaitGroup
	// appends serializes the write tasks of one daily file
	appends map[string]*sync.Mutex
}

// New creates a store whose chunk date starts at the current UTC date
func New(config Config, submitter pool.Submitter, archiver Archiver, logger *slog.Logger, metrics types.MetricsCollector) (*Store, error) {
	if config.CSVDir == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "csv directory is required").
			WithComponent("store")
	}
	if submitter == nil || archiver == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "submitter and archiver are required").
			WithComponent("store")
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		config:    config,
		submitter: submitter,
		archiver:  archiver,
		logger:    logger.With("component", "store"),
		metrics:   metrics,
		chunkDate: types.DateOf(config.Now()),
		writes:    make(map[string]*sync.WaitGroup),
		appends:   make(map[string]*sync.Mutex),
	}, nil
}

// Add buffers a batch of positions. The date of the first position decides
// rotation: a new date flushes the buffer and archives the previous day's
// file, an oversized buffer is flushed without archiving. The batch is
// copied; the caller may reuse the slice.
func (s *Store) Add(positions []types.Position) error {
	if len(positions) == 0 {
		return errors.NewError(errors.ErrCodeInvalidInput, "positions cannot be empty").
			WithComponent("store").WithOperation("add")
	}

	start := time.Now()
	newChunkDate := positions[0].Date()
	s.checkHomogeneous(newChunkDate, positions)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !newChunkDate.Equal(s.chunkDate):
		previous := s.DailyFilePath(s.chunkDate)
		if err := s.flushLocked(); err != nil {
			return err
		}
		s.buffer = append([]types.Position(nil), positions...)

		var after []pool.Waiter
		if wg, ok := s.writes[previous]; ok {
			delete(s.writes, previous)
			after = append(after, wg)
		}
		s.logger.Info("Chunk date changed",
			"previous", s.chunkDate.Format(types.DateLayout),
			"current", newChunkDate.Format(types.DateLayout))
		if err := s.archiver.Archive(previous, after...); err != nil {
			// The batch is buffered; only the previous day stays unarchived.
			s.logger.Error("Failed to schedule archive", "file", previous, "error", err)
			if s.metrics != nil {
				s.metrics.RecordError("archive", err)
			}
		}

	case len(s.buffer) > s.config.BufferSize:
		if err := s.flushLocked(); err != nil {
			return err
		}
		s.buffer = append([]types.Position(nil), positions...)

	default:
		s.buffer = append(s.buffer, positions...)
	}

	s.chunkDate = newChunkDate
	s.reportBuffer()
	if s.metrics != nil {
		s.metrics.RecordOperation("add", time.Since(start), 0, true)
	}
	return nil
}

// Flush schedules a write of the buffered positions to the current chunk
// date's file and clears the buffer. An empty buffer schedules nothing.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.flushLocked()
	s.reportBuffer()
	return err
}

// ChunkDate returns the date the buffer is associated with
func (s *Store) ChunkDate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkDate
}

// BufferLen returns the number of buffered positions
func (s *Store) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Buffered returns a copy of the buffered positions
func (s *Store) Buffered() []types.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Position(nil), s.buffer...)
}

// DailyFilePath returns the CSV path for date
func (s *Store) DailyFilePath(date time.Time) string {
	return filepath.Join(s.config.CSVDir, types.DailyFileName(date))
}

// flushLocked must be called with s.mu held. On a submission failure the
// buffer is left intact.
func (s *Store) flushLocked() error {
	if len(s.buffer) == 0 {
		return nil
	}

	snapshot := append([]types.Position(nil), s.buffer...)
	path := s.DailyFilePath(s.chunkDate)

	wg, ok := s.writes[path]
	if !ok {
		wg = &sync.WaitGroup{}
		s.writes[path] = wg
	}
	wg.Add(1)

	lock, ok := s.appends[path]
	if !ok {
		lock = &sync.Mutex{}
		s.appends[path] = lock
	}

	err := s.submitter.Submit("write", func(ctx context.Context) error {
		defer wg.Done()
		lock.Lock()
		defer lock.Unlock()
		return s.write(path, snapshot)
	})
	if err != nil {
		wg.Done()
		return fmt.Errorf("failed to schedule write of %d positions: %w", len(snapshot), err)
	}

	s.buffer = s.buffer[:0]
	return nil
}

func (s *Store) write(path string, positions []types.Position) error {
	start := time.Now()

	written, err := appendRows(path, positions)
	took := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordOperation("write", took, written, err == nil)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodePersistence, "failed to append positions").
			WithComponent("store").WithOperation("write").
			WithContext("file", path).
			WithDetail("lost_rows", len(positions))
	}

	s.logger.Info(fmt.Sprintf("Writing %d positions to %s took %.3fs", len(positions), filepath.Base(path), took.Seconds()),
		"file", path, "bytes", written)
	return nil
}

// appendRows appends positions as CSV rows and returns the bytes written.
// The rows are encoded up front and reach the file in one write.
func appendRows(path string, positions []types.Position) (int64, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, p := range positions {
		if err := w.Write(p.Values()); err != nil {
			return 0, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(buf.Bytes())
	if err != nil {
		f.Close()
		return int64(n), err
	}
	return int64(n), f.Close()
}

// checkHomogeneous logs batches spanning more than one UTC date. The first
// position still decides the chunk date.
func (s *Store) checkHomogeneous(date time.Time, positions []types.Position) {
	for _, p := range positions[1:] {
		if d := p.Date(); !d.Equal(date) {
			s.logger.Warn("Batch spans more than one date",
				"first", date.Format(types.DateLayout),
				"other", d.Format(types.DateLayout),
				"positions", len(positions))
			if s.metrics != nil {
				s.metrics.RecordError("add", errors.NewError(errors.ErrCodeInvalidInput, "mixed_date_batch"))
			}
			return
		}
	}
}

func (s *Store) reportBuffer() {
	if s.metrics != nil {
		s.metrics.UpdateBufferSize(len(s.buffer))
	}
}
