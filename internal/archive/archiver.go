// Package archive compresses completed daily files and ships them to an
// object store.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/mpyk/mpyk/internal/pool"
	"github.com/mpyk/mpyk/pkg/errors"
	"github.com/mpyk/mpyk/pkg/types"
	"github.com/mpyk/mpyk/pkg/utils"
)

// Config contains archiver configuration
type Config struct {
	ZipDir string
	// Upload enables steps three and four. When false the ZIP stays in
	// ZipDir.
	Upload bool
}

// Archiver runs compress -> delete CSV -> upload -> delete ZIP as one
// background task per daily file
type Archiver struct {
	config    Config
	submitter pool.Submitter
	bucket    types.BucketFactory
	logger    *slog.Logger
	metrics   types.MetricsCollector
}

// New creates an archiver. bucket may be nil when upload is disabled.
func New(config Config, submitter pool.Submitter, bucket types.BucketFactory, logger *slog.Logger, metrics types.MetricsCollector) (*Archiver, error) {
	if config.ZipDir == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "zip directory is required").
			WithComponent("archiver")
	}
	if submitter == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "submitter is required").
			WithComponent("archiver")
	}
	if config.Upload && bucket == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "bucket factory is required when upload is enabled").
			WithComponent("archiver")
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("component", "archiver")
	if !config.Upload {
		logger.Warn("Upload disabled, archives are kept locally", "zip_dir", config.ZipDir)
	}

	return &Archiver{
		config:    config,
		submitter: submitter,
		bucket:    bucket,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Archive schedules the pipeline for csvFilePath and returns without
// waiting. The task first waits for every Waiter in after.
func (a *Archiver) Archive(csvFilePath string, after ...pool.Waiter) error {
	return a.submitter.Submit("archive", func(ctx context.Context) error {
		for _, w := range after {
			w.Wait()
		}
		return a.run(ctx, csvFilePath)
	})
}

// ZipPath returns the artifact path for a daily file
func (a *Archiver) ZipPath(csvFilePath string) string {
	return utils.JoinBase(a.config.ZipDir, types.ArchiveFileName(filepath.Base(csvFilePath)))
}

func (a *Archiver) run(ctx context.Context, csvFilePath string) error {
	zipPath := a.ZipPath(csvFilePath)
	logger := a.logger.With("file", filepath.Base(csvFilePath))

	if err := a.compress(csvFilePath, zipPath); err != nil {
		return err
	}

	if err := os.Remove(csvFilePath); err != nil {
		cerr := errors.Wrap(err, errors.ErrCodeCleanup, "failed to remove source file").
			WithComponent("archiver").WithOperation("remove_csv").WithContext("file", csvFilePath)
		logger.Warn("Failed to remove CSV after compression", "error", cerr)
		a.recordError("remove_csv", cerr)
	}

	if !a.config.Upload {
		logger.Info("Archive kept locally", "zip", zipPath)
		return nil
	}

	if err := a.upload(ctx, zipPath); err != nil {
		logger.Error("Upload failed, archive kept locally", "zip", zipPath)
		return err
	}

	if err := os.Remove(zipPath); err != nil {
		cerr := errors.Wrap(err, errors.ErrCodeCleanup, "failed to remove uploaded archive").
			WithComponent("archiver").WithOperation("remove_zip").WithContext("file", zipPath)
		a.recordError("remove_zip", cerr)
		return cerr
	}

	return nil
}

// compress writes csvFilePath into a new ZIP at zipPath. An existing ZIP is
// never overwritten. On failure the partial ZIP is removed.
func (a *Archiver) compress(csvFilePath, zipPath string) (err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			err = errors.Wrap(err, errors.ErrCodeCompression, "failed to compress daily file").
				WithComponent("archiver").WithOperation("compress").
				WithContext("file", csvFilePath).WithContext("zip", zipPath)
			a.recordError("compress", err)
		}
	}()

	src, err := os.Open(csvFilePath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(zipPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if err := writeZip(out, src, info); err != nil {
		out.Close()
		_ = utils.RemoveIfExists(zipPath)
		return err
	}
	if err := out.Close(); err != nil {
		_ = utils.RemoveIfExists(zipPath)
		return err
	}

	took := time.Since(start)
	var zipSize int64
	if zi, statErr := os.Stat(zipPath); statErr == nil {
		zipSize = zi.Size()
	}
	if a.metrics != nil {
		a.metrics.RecordOperation("compress", took, zipSize, true)
	}
	a.logger.Info(fmt.Sprintf("Compressing %s took %.3fs", filepath.Base(csvFilePath), took.Seconds()),
		"original", utils.FormatBytes(info.Size()), "compressed", utils.FormatBytes(zipSize))
	return nil
}

func writeZip(out io.Writer, src io.Reader, info os.FileInfo) error {
	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:     filepath.Base(info.Name()),
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	})
	if err != nil {
		return err
	}
	if _, err := io.Copy(entry, src); err != nil {
		return err
	}
	return zw.Close()
}

func (a *Archiver) upload(ctx context.Context, zipPath string) error {
	start := time.Now()
	remoteName := filepath.Base(zipPath)

	wrap := func(err error, msg string) error {
		uerr := errors.Wrap(err, errors.ErrCodeUpload, msg).
			WithComponent("archiver").WithOperation("upload").
			WithContext("zip", zipPath).WithContext("remote", remoteName)
		a.recordError("upload", uerr)
		if a.metrics != nil {
			a.metrics.RecordOperation("upload", time.Since(start), 0, false)
		}
		return uerr
	}

	store, err := a.bucket(ctx)
	if err != nil {
		return wrap(err, "failed to open bucket")
	}
	if err := store.Upload(ctx, zipPath, remoteName); err != nil {
		return wrap(err, "failed to upload archive")
	}

	took := time.Since(start)
	var size int64
	if info, err := os.Stat(zipPath); err == nil {
		size = info.Size()
	}
	if a.metrics != nil {
		a.metrics.RecordOperation("upload", took, size, true)
	}
	a.logger.Info(fmt.Sprintf("Uploading %s took %.3fs", remoteName, took.Seconds()), "bytes", size)
	return nil
}

func (a *Archiver) recordError(operation string, err error) {
	if a.metrics != nil {
		a.metrics.RecordError(operation, err)
	}
}
