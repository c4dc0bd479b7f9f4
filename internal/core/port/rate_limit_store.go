package port

import (
	"context"
	"time"
)

// RateLimitStore persists request attempts for sliding-window throttling.
type RateLimitStore interface {
	// RecordAttempt stores one attempt at the given instant.
	RecordAttempt(ctx context.Context, key string, at time.Time) error
	// CountAttempts returns how many attempts fall inside the window
	// ending at reference.
	CountAttempts(ctx context.Context, key string, window time.Duration, reference time.Time) (int, error)
	// TrimWindow drops attempts older than the window relative to reference.
	TrimWindow(ctx context.Context, key string, window time.Duration, reference time.Time) error
	// OldestAttempt returns the earliest attempt still inside the window,
	// or false when the window is empty.
	OldestAttempt(ctx context.Context, key string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
