package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/millbrook/orderdesk/internal/domain"
)

// Stats reports the adapter-level counters for the admin surface.
func (s *Service) Stats(ctx context.Context) domain.CacheStats {
	s.metricsMu.Lock()
	hits, misses := s.hits, s.misses
	s.metricsMu.Unlock()

	stats := domain.CacheStats{
		Hits:          hits,
		Misses:        misses,
		HitRate:       hitRate(hits, misses),
		StoreFailures: s.store.FailureCount(),
	}
	if used, err := s.store.MemoryUsedBytes(ctx); err == nil {
		stats.MemoryUsedBytes = used
	}
	if count, err := s.store.KeyCount(ctx); err == nil {
		stats.KeyCount = count
	}
	return stats
}

// ClearCacheResult is the replayable outcome of a ClearCache call.
type ClearCacheResult struct {
	ClearedAt time.Time `json:"cleared_at"`
	ActorID   string    `json:"actor_id"`
}

// ClearCache flushes the whole namespace. Destructive, so it demands an
// idempotency key; replays with the same key return the recorded outcome
// without flushing again.
func (s *Service) ClearCache(ctx context.Context, actor Actor) (ClearCacheResult, error) {
	var result ClearCacheResult
	err := s.idempotent(ctx, actor, "clear_cache", nil, &result, func() (any, error) {
		s.store.Clear(ctx)
		s.logger.InfoContext(ctx, "cache cleared",
			"operation", "clear_cache",
			"outcome", "success",
			"actor_id", actor.SubjectID,
		)
		return ClearCacheResult{ClearedAt: s.nowFn(), ActorID: actor.SubjectID}, nil
	})
	if err != nil {
		return ClearCacheResult{}, err
	}
	return result, nil
}

// InvalidateResult is the replayable outcome of an explicit invalidation.
type InvalidateResult struct {
	Deleted int       `json:"deleted"`
	At      time.Time `json:"at"`
}

// InvalidatePattern deletes keys matching a glob on operator demand.
func (s *Service) InvalidatePattern(ctx context.Context, actor Actor, pattern string) (InvalidateResult, error) {
	if pattern == "" {
		return InvalidateResult{}, fmt.Errorf("%w: pattern is required", domain.ErrInvalidInput)
	}
	var result InvalidateResult
	err := s.idempotent(ctx, actor, "invalidate_pattern", map[string]string{"pattern": pattern}, &result, func() (any, error) {
		deleted := s.deletePatternOrKey(ctx, pattern)
		return InvalidateResult{Deleted: deleted, At: s.nowFn()}, nil
	})
	if err != nil {
		return InvalidateResult{}, err
	}
	return result, nil
}

// InvalidateTag deletes every pattern grouped under a logical tag.
func (s *Service) InvalidateTag(ctx context.Context, actor Actor, tag string) (InvalidateResult, error) {
	patterns := domain.PatternsForTag(tag)
	if len(patterns) == 0 {
		return InvalidateResult{}, fmt.Errorf("%w: unknown tag %q", domain.ErrInvalidInput, tag)
	}
	var result InvalidateResult
	err := s.idempotent(ctx, actor, "invalidate_tag", map[string]string{"tag": tag}, &result, func() (any, error) {
		deleted := 0
		for _, pattern := range patterns {
			deleted += s.deletePatternOrKey(ctx, pattern)
		}
		return InvalidateResult{Deleted: deleted, At: s.nowFn()}, nil
	})
	if err != nil {
		return InvalidateResult{}, err
	}
	return result, nil
}

// InvalidateEntity runs the full invalidation path for one entity, exactly
// as if the entity had been written.
func (s *Service) InvalidateEntity(ctx context.Context, actor Actor, entityType, entityID string) error {
	if entityType == "" {
		return fmt.Errorf("%w: entity type is required", domain.ErrInvalidInput)
	}
	s.Invalidate(ctx, domain.InvalidationContext{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  domain.OpUpdate,
		ActorID:    actor.SubjectID,
	})
	return nil
}

// idempotent wraps a destructive admin mutation. The first call with a key
// executes fn and records its JSON outcome in recordPtr; replays with the
// same key and request decode the stored record into recordPtr instead of
// executing again. A reused key with a different request is a conflict.
func (s *Service) idempotent(ctx context.Context, actor Actor, op string, request any, recordPtr any, fn func() (any, error)) error {
	if actor.IdempotencyKey == "" {
		return domain.ErrIdempotencyRequired
	}
	key := op + ":" + actor.IdempotencyKey
	requestHash := hashJSON(map[string]any{"op": op, "request": request})
	now := s.nowFn()

	err := s.idempotency.Reserve(ctx, key, requestHash, now.Add(s.cfg.IdempotencyTTL))
	if err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("reserve idempotency key: %w", err)
		}
		record, getErr := s.idempotency.Get(ctx, key, now)
		if getErr != nil {
			return fmt.Errorf("load idempotency record: %w", getErr)
		}
		if record.RequestHash != requestHash {
			return domain.ErrIdempotencyConflict
		}
		if record.ResponseCode == 0 {
			// Reserved but not completed: the first call is still running.
			return domain.ErrConflict
		}
		if err := json.Unmarshal(record.ResponseBody, recordPtr); err != nil {
			return fmt.Errorf("decode idempotency record: %w", err)
		}
		return nil
	}

	outcome, err := fn()
	if err != nil {
		return err
	}
	body, _ := json.Marshal(outcome)
	if err := s.idempotency.Complete(ctx, key, 200, body, s.nowFn()); err != nil {
		s.logger.WarnContext(ctx, "idempotency record not completed",
			"operation", op,
			"outcome", "failure",
			"error", err,
		)
	}
	_ = json.Unmarshal(body, recordPtr)
	return nil
}

func hashJSON(v any) string {
	raw, _ := json.Marshal(v)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// LoadTestReport summarizes one synthetic load run.
type LoadTestReport struct {
	Operations    int           `json:"operations"`
	Successes     int           `json:"successes"`
	StoreFailures int64         `json:"store_failures"`
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	OpsPerSecond  float64       `json:"ops_per_second"`
}

// RunLoadTest exercises the store with a synthetic set/get/delete mix under
// a throwaway key prefix. Store failures are read from the adapter's failure
// counter delta, since the store never surfaces errors directly.
func (s *Service) RunLoadTest(ctx context.Context, operations int) (LoadTestReport, error) {
	if operations <= 0 {
		return LoadTestReport{}, fmt.Errorf("%w: operations must be positive", domain.ErrInvalidInput)
	}

	prefix := "loadtest:" + uuid.NewString()[:8]
	rng := rand.New(rand.NewSource(s.nowFn().UnixNano()))
	failuresBefore := s.store.FailureCount()
	start := s.nowFn()

	var hits, misses int64
	successes := 0
	for i := 0; i < operations; i++ {
		if ctx.Err() != nil {
			return LoadTestReport{}, ctx.Err()
		}
		key := fmt.Sprintf("%s:%d", prefix, rng.Intn(operations/4+1))
		switch rng.Intn(10) {
		case 0:
			s.store.Delete(ctx, key)
		case 1, 2, 3:
			s.store.Set(ctx, key, []byte(`{"probe":true}`), time.Minute)
		default:
			if _, ok := s.store.Get(ctx, key); ok {
				hits++
			} else {
				misses++
			}
		}
		successes++
	}

	s.store.DeletePattern(ctx, prefix+":*")

	elapsed := s.nowFn().Sub(start)
	failures := s.store.FailureCount() - failuresBefore
	report := LoadTestReport{
		Operations:    operations,
		Successes:     successes - int(failures),
		StoreFailures: failures,
		Hits:          hits,
		Misses:        misses,
		Elapsed:       elapsed,
	}
	if elapsed > 0 {
		report.OpsPerSecond = float64(operations) / elapsed.Seconds()
	}
	s.logger.InfoContext(ctx, "synthetic load test finished",
		"operation", "load_test",
		"outcome", "success",
		"operations", operations,
		"store_failures", failures,
	)
	return report, nil
}
