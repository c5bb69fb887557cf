package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/millbrook/orderdesk/internal/domain"
	"github.com/millbrook/orderdesk/internal/ports"
)

// Invalidator is the slice of the application service the change worker
// needs: turning one entity mutation into cache invalidation.
type Invalidator interface {
	Invalidate(ctx context.Context, ictx domain.InvalidationContext)
}

// ChangeWorker feeds broker-delivered entity changes into the invalidation
// coordinator. Delivery is at-least-once; replays are harmless because
// invalidation only removes keys.
type ChangeWorker struct {
	logger      *slog.Logger
	consumer    ports.EventConsumer
	invalidator Invalidator
	interval    time.Duration
	batchSize   int
}

func NewChangeWorker(logger *slog.Logger, consumer ports.EventConsumer, invalidator Invalidator, interval time.Duration, batchSize int) *ChangeWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ChangeWorker{
		logger:      logger,
		consumer:    consumer,
		invalidator: invalidator,
		interval:    interval,
		batchSize:   batchSize,
	}
}

func (w *ChangeWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "change poll failed",
				"module", "events.change_worker",
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

func (w *ChangeWorker) processOnce(ctx context.Context) error {
	events, err := w.consumer.Poll(ctx, w.batchSize)
	if err != nil {
		return err
	}
	for _, event := range events {
		w.invalidator.Invalidate(ctx, domain.InvalidationContext{
			EntityType:      event.EntityType,
			EntityID:        event.EntityID,
			Operation:       event.Operation,
			ActorID:         event.ActorID,
			RelatedEntities: event.RelatedEntities,
		})
	}
	if len(events) > 0 {
		w.logger.InfoContext(ctx, "change batch applied",
			"module", "events.change_worker",
			"layer", "adapter",
			"operation", "process_once",
			"outcome", "success",
			"batch_size", len(events),
		)
	}
	return nil
}
