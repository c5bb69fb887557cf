package ports

import (
	"context"
	"time"
)

// CacheStore is the uniform surface over the backing key/value cache.
//
// Get/Set/Delete never surface backing-store failures to the caller: the
// adapter logs and degrades (absent on read, no-op on write/delete). The
// cache is advisory; nothing upstream may turn a cache failure into a
// user-visible write failure. Failure totals stay observable through
// FailureCount for the health monitor and the synthetic load test.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	// DeletePattern removes keys matching the glob in bounded scan batches.
	// At-least-once: a crash mid-scan may leave stragglers, and re-running
	// the same pattern is always safe.
	DeletePattern(ctx context.Context, pattern string) int
	Clear(ctx context.Context)

	Ping(ctx context.Context) error
	MemoryUsedBytes(ctx context.Context) (int64, error)
	KeyCount(ctx context.Context) (int64, error)
	FailureCount() int64
}
