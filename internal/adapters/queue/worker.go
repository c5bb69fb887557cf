package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/millbrook/orderdesk/internal/domain"
	"github.com/millbrook/orderdesk/internal/ports"
)

// Worker drains the invalidation queue. It is stateless and safely
// re-runnable: claimed jobs whose claim expires are picked up again, and all
// job effects (pattern deletes, view refreshes) are idempotent.
type Worker struct {
	logger    *slog.Logger
	queue     ports.JobQueue
	executor  ports.JobExecutor
	interval  time.Duration
	batchSize int
	claimTTL  time.Duration
}

// NewWorker constructs the queue drain loop with sane defaults.
func NewWorker(
	logger *slog.Logger,
	queue ports.JobQueue,
	executor ports.JobExecutor,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	return &Worker{
		logger:    logger,
		queue:     queue,
		executor:  executor,
		interval:  interval,
		batchSize: batchSize,
		claimTTL:  claimTTL,
	}
}

// Run executes the periodic drain loop until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.ProcessOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "queue iteration failed",
				"module", "queue.worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce claims one batch of due jobs and executes them. Exposed so the
// admin surface and tests can drain the queue deterministically.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	claimToken := uuid.NewString()
	now := time.Now().UTC()
	records, err := w.queue.Claim(ctx, w.batchSize, claimToken, now.Add(w.claimTTL), now)
	if err != nil {
		return err
	}

	completed := 0
	failed := 0
	deadLettered := 0
	for _, rec := range records {
		execErr := w.executor.ExecuteJob(ctx, rec.Kind, rec.Payload)
		finishedAt := time.Now().UTC()
		if execErr == nil {
			completed++
			_ = w.queue.MarkCompleted(ctx, rec.JobID, claimToken, finishedAt)
			continue
		}

		attemptsAfterFailure := rec.Attempts + 1
		if attemptsAfterFailure >= rec.MaxAttempts {
			deadLettered++
			w.logger.ErrorContext(ctx, "job moved to dead letter",
				"module", "queue.worker",
				"layer", "adapter",
				"operation", "execute_job",
				"outcome", "failure",
				"job_id", rec.JobID,
				"kind", rec.Kind,
				"attempts", attemptsAfterFailure,
				"error", execErr,
			)
			_ = w.queue.MarkDeadLettered(ctx, rec.JobID, claimToken, execErr.Error(), finishedAt)
			continue
		}

		failed++
		retryAt := finishedAt.Add(retryDelay(rec.Backoff, rec.BackoffDelay, attemptsAfterFailure))
		w.logger.WarnContext(ctx, "job failed; retry scheduled",
			"module", "queue.worker",
			"layer", "adapter",
			"operation", "execute_job",
			"outcome", "failure",
			"job_id", rec.JobID,
			"kind", rec.Kind,
			"attempts", attemptsAfterFailure,
			"retry_at", retryAt,
			"error", execErr,
		)
		_ = w.queue.MarkFailed(ctx, rec.JobID, claimToken, execErr.Error(), retryAt)
	}

	if len(records) > 0 {
		w.logger.InfoContext(ctx, "queue batch processed",
			"module", "queue.worker",
			"layer", "adapter",
			"operation", "process_once",
			"outcome", "success",
			"batch_size", len(records),
			"completed_count", completed,
			"failed_count", failed,
			"dead_lettered_count", deadLettered,
		)
	}
	return nil
}

// retryDelay computes the wait before the next attempt. Exponential backoff
// doubles from the base per prior attempt; fixed repeats the base.
func retryDelay(policy domain.BackoffPolicy, base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = 2 * time.Second
	}
	if policy != domain.BackoffExponential {
		return base
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay > 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return delay
}
