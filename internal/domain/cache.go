package domain

import "time"

// JobKind names the work a queued invalidation job performs.
type JobKind string

const (
	JobInvalidatePattern JobKind = "invalidate-pattern"
	JobRefreshView       JobKind = "refresh-view"
	JobBulkInvalidate    JobKind = "bulk-invalidate"
)

// BackoffPolicy selects how retry delays grow between attempts.
type BackoffPolicy string

const (
	BackoffFixed       BackoffPolicy = "fixed"
	BackoffExponential BackoffPolicy = "exponential"
)

// JobStatus is the queue-side lifecycle of a job. Workers only ever move
// status forward; job identity is owned by the queue.
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusClaimed      JobStatus = "claimed"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusDeadLettered JobStatus = "dead_lettered"
)

// InvalidatePatternPayload is the payload of an invalidate-pattern job.
type InvalidatePatternPayload struct {
	Pattern    string    `json:"pattern"`
	EntityType string    `json:"entity_type,omitempty"`
	Operation  Operation `json:"operation,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// RefreshViewPayload is the payload of a refresh-view job.
type RefreshViewPayload struct {
	View       string    `json:"view"`
	EntityType string    `json:"entity_type,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// BulkInvalidatePayload carries a batch of contexts processed off the write path.
type BulkInvalidatePayload struct {
	Contexts   []InvalidationContext `json:"contexts"`
	EnqueuedAt time.Time             `json:"enqueued_at"`
}

// QueueStats is the backlog view the health monitor reads from the queue.
type QueueStats struct {
	Pending      int64 `json:"pending"`
	Claimed      int64 `json:"claimed"`
	DeadLettered int64 `json:"dead_lettered"`
}

// CacheStats is the adapter-level counter snapshot exposed on the admin surface.
type CacheStats struct {
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	HitRate         float64 `json:"hit_rate"`
	StoreFailures   int64   `json:"store_failures"`
	MemoryUsedBytes int64   `json:"memory_used_bytes"`
	KeyCount        int64   `json:"key_count"`
}
