package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/millbrook/orderdesk/internal/domain"
)

// JobSpec describes a job to enqueue. DedupeKey, when set, collapses the job
// with an identical pending job instead of inserting a second one; rapid
// successive writes then fund a single deferred pass.
type JobSpec struct {
	Kind         domain.JobKind
	Payload      []byte
	Delay        time.Duration
	Priority     int
	MaxAttempts  int
	Backoff      domain.BackoffPolicy
	BackoffDelay time.Duration
	DedupeKey    string
}

// JobRecord is the queue's view of one job. Workers never mutate identity,
// only status transitions keyed by the claim token.
type JobRecord struct {
	JobID        uuid.UUID
	Kind         domain.JobKind
	Payload      []byte
	Priority     int
	Attempts     int
	MaxAttempts  int
	Backoff      domain.BackoffPolicy
	BackoffDelay time.Duration
	AvailableAt  time.Time
	LastError    string
}

// JobQueue is the durable, delayed, retryable queue backing deferred
// invalidation. Claim hands out due jobs ordered by priority descending then
// availability, stamping them with the claim token until claimUntil.
type JobQueue interface {
	Enqueue(ctx context.Context, spec JobSpec) error
	Claim(ctx context.Context, limit int, claimToken string, claimUntil time.Time, now time.Time) ([]JobRecord, error)
	MarkCompleted(ctx context.Context, jobID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, claimToken string, reason string, retryAt time.Time) error
	MarkDeadLettered(ctx context.Context, jobID uuid.UUID, claimToken string, reason string, at time.Time) error
	Stats(ctx context.Context) (domain.QueueStats, error)
}

// JobExecutor performs the actual work of a claimed job. The application
// service implements it; the worker stays a pure scheduling loop.
type JobExecutor interface {
	ExecuteJob(ctx context.Context, kind domain.JobKind, payload []byte) error
}
