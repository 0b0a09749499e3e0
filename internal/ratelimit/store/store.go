// Package store defines the sliding window bucket contract shared by the
// in-memory and Redis implementations.
package store

import (
	"context"
	"time"

	"otpgate/internal/ratelimit/models"
)

// BucketStore counts requests per key over a sliding window.
//
// Allow records one request for key and reports whether the budget held.
// Reset clears the counter for a key. CurrentCount reads without recording.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
	Reset(ctx context.Context, key string) error
	CurrentCount(ctx context.Context, key string) (int, error)
}
