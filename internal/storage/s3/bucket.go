package s3

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/mpyk/mpyk/pkg/types"
)

const archiveContentType = "application/zip"

// Bucket uploads local files to one S3 bucket
type Bucket struct {
	client      *s3.Client
	transporter *cargoships3.Transporter
	config      *Config
	logger      *slog.Logger
	metrics     *MetricsCollector
}

// Factory opens authenticated buckets on demand
type Factory struct {
	config  *Config
	logger  *slog.Logger
	metrics *MetricsCollector
}

// NewFactory validates cfg once. Clients are built per Open call.
func NewFactory(cfg *Config, logger *slog.Logger) (*Factory, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Factory{
		config:  cfg,
		logger:  logger.With("component", "s3-bucket", "bucket", cfg.Bucket),
		metrics: NewMetricsCollector(),
	}, nil
}

// NewBucketFactory returns a BucketFactory backed by a new Factory
func NewBucketFactory(cfg *Config, logger *slog.Logger) (types.BucketFactory, error) {
	f, err := NewFactory(cfg, logger)
	if err != nil {
		return nil, err
	}
	return f.Open, nil
}

// Open builds a fresh client, re-resolving credentials
func (f *Factory) Open(ctx context.Context) (types.ObjectStore, error) {
	return f.Bucket(ctx)
}

// Bucket is Open with the concrete type
func (f *Factory) Bucket(ctx context.Context) (*Bucket, error) {
	client, err := newClient(ctx, f.config)
	if err != nil {
		return nil, err
	}

	b := &Bucket{
		client:  client,
		config:  f.config,
		logger:  f.logger,
		metrics: f.metrics,
	}

	if f.config.EnableCargoShipOptimization {
		b.transporter = cargoships3.NewTransporter(client, awsconfig.S3Config{
			Bucket:             f.config.Bucket,
			StorageClass:       ConvertTierToCargoShipStorageClass(f.config.StorageTier),
			MultipartThreshold: 32 * 1024 * 1024, // 32MB threshold
			MultipartChunkSize: 16 * 1024 * 1024, // 16MB chunks
			Concurrency:        f.config.Concurrency,
		})
	}

	return b, nil
}

// Metrics returns the metrics shared by every bucket of this factory
func (f *Factory) Metrics() *MetricsCollector {
	return f.metrics
}

// Upload stores the file at localPath under remoteName
func (b *Bucket) Upload(ctx context.Context, localPath, remoteName string) (err error) {
	start := time.Now()
	defer func() {
		b.metrics.RecordMetrics(time.Since(start), err != nil)
		if err != nil {
			b.metrics.RecordError(err)
		}
	}()

	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	if b.transporter != nil {
		terr := b.uploadWithTransporter(ctx, localPath, remoteName, info.Size())
		if terr == nil {
			return nil
		}
		b.metrics.RecordFallbackEvent()
		b.logger.Warn("CargoShip upload failed, falling back to standard S3", "key", remoteName, "error", terr)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.config.Bucket),
		Key:           aws.String(remoteName),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(archiveContentType),
	}
	if b.config.StorageTier != "" {
		input.StorageClass = ConvertTierToStorageClass(b.config.StorageTier)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("PutObject %s/%s failed: %w", b.config.Bucket, remoteName, err)
	}

	b.metrics.RecordBytesUploaded(info.Size())
	b.logger.Debug("Object uploaded", "key", remoteName, "size", info.Size())
	return nil
}

func (b *Bucket) uploadWithTransporter(ctx context.Context, localPath, remoteName string, size int64) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := b.transporter.Upload(ctx, cargoships3.Archive{
		Key:          remoteName,
		Reader:       f,
		Size:         size,
		StorageClass: ConvertTierToCargoShipStorageClass(b.config.StorageTier),
		Metadata: map[string]string{
			"content-type": archiveContentType,
			"uploaded-by":  "mpyk-collect",
		},
	})
	if err != nil {
		return err
	}

	b.metrics.RecordBytesUploaded(size)
	b.metrics.RecordCargoShipUpload()
	b.logger.Debug("CargoShip upload completed",
		"key", remoteName,
		"size", size,
		"throughput", result.Throughput,
		"duration", result.Duration)
	return nil
}

// HealthCheck verifies the credentials can reach the bucket
func (b *Bucket) HealthCheck(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.config.Bucket),
	})
	if err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	return nil
}

// Name returns the bucket name
func (b *Bucket) Name() string {
	return b.config.Bucket
}
