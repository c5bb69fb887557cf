package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/millbrook/orderdesk/internal/domain"
	"github.com/millbrook/orderdesk/internal/ports"
)

// Invalidate applies one entity mutation to the cache: immediate patterns
// are deleted inline, deferred patterns and view refreshes go through the
// queue, and related entities get the same treatment recursively. It never
// returns an error; nothing here may fail the triggering domain write.
func (s *Service) Invalidate(ctx context.Context, ictx domain.InvalidationContext) {
	if !s.cfg.Enabled {
		return
	}
	visited := make(map[string]bool)
	s.invalidateOne(ctx, ictx, visited)
}

func (s *Service) invalidateOne(ctx context.Context, ictx domain.InvalidationContext, visited map[string]bool) {
	key := ictx.EntityType + ":" + ictx.EntityID
	if visited[key] {
		return
	}
	visited[key] = true

	patterns := domain.PatternsFor(ictx.EntityType, ictx.EntityID)
	s.deleteImmediate(ctx, patterns.Immediate)
	s.enqueueDeferred(ctx, ictx, patterns.Deferred)
	s.enqueueViewRefreshes(ctx, ictx.EntityType)

	for _, related := range ictx.RelatedEntities {
		s.invalidateOne(ctx, domain.InvalidationContext{
			EntityType: related.Type,
			EntityID:   related.ID,
			Operation:  ictx.Operation,
			ActorID:    ictx.ActorID,
		}, visited)
	}
}

// deleteImmediate fans out over the patterns concurrently; one pattern's
// failure never blocks the others, and the store itself swallows backing
// errors, so the write path sees nothing either way.
func (s *Service) deleteImmediate(ctx context.Context, patterns []string) {
	var wg sync.WaitGroup
	for _, pattern := range patterns {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			s.deletePatternOrKey(ctx, p)
		}(pattern)
	}
	wg.Wait()
}

// deletePatternOrKey deletes a glob, or a literal key when the pattern
// carries no wildcard.
func (s *Service) deletePatternOrKey(ctx context.Context, pattern string) int {
	if strings.ContainsAny(pattern, "*?[") {
		return s.store.DeletePattern(ctx, pattern)
	}
	s.store.Delete(ctx, pattern)
	return 1
}

func (s *Service) enqueueDeferred(ctx context.Context, ictx domain.InvalidationContext, patterns []string) {
	now := s.nowFn()
	for _, pattern := range patterns {
		payload, _ := json.Marshal(domain.InvalidatePatternPayload{
			Pattern:    pattern,
			EntityType: ictx.EntityType,
			Operation:  ictx.Operation,
			EnqueuedAt: now,
		})
		err := s.queue.Enqueue(ctx, ports.JobSpec{
			Kind:         domain.JobInvalidatePattern,
			Payload:      payload,
			Delay:        s.cfg.DeferredDelay,
			MaxAttempts:  s.cfg.DeferredMaxAttempts,
			Backoff:      domain.BackoffExponential,
			BackoffDelay: s.cfg.DeferredBackoffDelay,
			DedupeKey:    "invalidate:" + pattern,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "deferred invalidation enqueue failed",
				"operation", "enqueue_deferred",
				"outcome", "failure",
				"pattern", pattern,
				"error", err,
			)
		}
	}
}

func (s *Service) enqueueViewRefreshes(ctx context.Context, entityType string) {
	now := s.nowFn()
	for _, trigger := range domain.ViewTriggersFor(entityType) {
		payload, _ := json.Marshal(domain.RefreshViewPayload{
			View:       trigger.View,
			EntityType: entityType,
			EnqueuedAt: now,
		})
		err := s.queue.Enqueue(ctx, ports.JobSpec{
			Kind:         domain.JobRefreshView,
			Payload:      payload,
			Delay:        trigger.Delay,
			Priority:     trigger.Priority,
			MaxAttempts:  s.cfg.DeferredMaxAttempts,
			Backoff:      domain.BackoffExponential,
			BackoffDelay: s.cfg.DeferredBackoffDelay,
			DedupeKey:    "refresh:" + trigger.View,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "view refresh enqueue failed",
				"operation", "enqueue_view_refresh",
				"outcome", "failure",
				"view", trigger.View,
				"error", err,
			)
		}
	}
}

// InvalidateBatch coordinates a bulk mutation: contexts are grouped by
// entity type and their pattern sets unioned, so the queue sees one pass per
// type instead of one per context.
func (s *Service) InvalidateBatch(ctx context.Context, contexts []domain.InvalidationContext) {
	if !s.cfg.Enabled || len(contexts) == 0 {
		return
	}

	immediate := make(map[string]struct{})
	deferred := make(map[string]struct{})
	types := make(map[string]struct{})
	for _, ictx := range contexts {
		types[strings.ToLower(ictx.EntityType)] = struct{}{}
		patterns := domain.PatternsFor(ictx.EntityType, ictx.EntityID)
		for _, p := range patterns.Immediate {
			immediate[p] = struct{}{}
		}
		for _, p := range patterns.Deferred {
			deferred[p] = struct{}{}
		}
		for _, related := range ictx.RelatedEntities {
			types[strings.ToLower(related.Type)] = struct{}{}
			rp := domain.PatternsFor(related.Type, related.ID)
			for _, p := range rp.Immediate {
				immediate[p] = struct{}{}
			}
			for _, p := range rp.Deferred {
				deferred[p] = struct{}{}
			}
		}
	}

	patterns := make([]string, 0, len(immediate))
	for p := range immediate {
		patterns = append(patterns, p)
	}
	s.deleteImmediate(ctx, patterns)

	batchCtx := domain.InvalidationContext{Operation: domain.OpBulk}
	deferredPatterns := make([]string, 0, len(deferred))
	for p := range deferred {
		deferredPatterns = append(deferredPatterns, p)
	}
	s.enqueueDeferred(ctx, batchCtx, deferredPatterns)

	for entityType := range types {
		s.enqueueViewRefreshes(ctx, entityType)
	}
}

// ExecuteJob performs one claimed queue job. It backs the worker loop; every
// branch is idempotent so retries and replays are safe.
func (s *Service) ExecuteJob(ctx context.Context, kind domain.JobKind, payload []byte) error {
	switch kind {
	case domain.JobInvalidatePattern:
		var p domain.InvalidatePatternPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode invalidate-pattern payload: %w", err)
		}
		if p.Pattern == "" {
			return fmt.Errorf("invalidate-pattern payload missing pattern")
		}
		s.deletePatternOrKey(ctx, p.Pattern)
		return nil

	case domain.JobRefreshView:
		var p domain.RefreshViewPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode refresh-view payload: %w", err)
		}
		if p.View == "" {
			return fmt.Errorf("refresh-view payload missing view")
		}
		refreshed, err := s.views.RefreshIfDue(ctx, p.View, s.nowFn())
		if err != nil {
			return fmt.Errorf("refresh view %s: %w", p.View, err)
		}
		// The view's own cache is stale either way once a refresh was due.
		s.store.DeletePattern(ctx, domain.ViewCachePattern(p.View))
		if refreshed {
			s.logger.InfoContext(ctx, "materialized view refreshed",
				"operation", "refresh_view",
				"outcome", "success",
				"view", p.View,
			)
		}
		return nil

	case domain.JobBulkInvalidate:
		var p domain.BulkInvalidatePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode bulk-invalidate payload: %w", err)
		}
		s.InvalidateBatch(ctx, p.Contexts)
		return nil

	default:
		return fmt.Errorf("unknown job kind %q", kind)
	}
}
