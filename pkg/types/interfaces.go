package types

import (
	"context"
	"time"
)

// PositionSource yields the current full snapshot of vehicle positions
type PositionSource interface {
	// GetAllPositions fails with a TRANSIENT_FETCH error on network or parse failure
	GetAllPositions(ctx context.Context) ([]Position, error)
}

// ObjectStore is a remote bucket accepting local files
type ObjectStore interface {
	Upload(ctx context.Context, localPath, remoteName string) error
}

// BucketFactory resolves an authenticated ObjectStore. It is called once per
// archive operation and may itself fail on authentication.
type BucketFactory func(ctx context.Context) (ObjectStore, error)

// MetricsCollector defines the metrics collection interface
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordError(operation string, err error)
	UpdateBufferSize(positions int)
	UpdateQueueDepth(tasks int)
}
