package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/millbrook/orderdesk/internal/application"
	"github.com/millbrook/orderdesk/internal/domain"
)

func TestClearCacheRequiresIdempotencyKey(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	_, err := f.service.ClearCache(ctx, application.Actor{SubjectID: "admin-1"})
	if !errors.Is(err, domain.ErrIdempotencyRequired) {
		t.Fatalf("expected ErrIdempotencyRequired, got %v", err)
	}
}

func TestClearCacheReplaysWithSameKey(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	actor := application.Actor{SubjectID: "admin-1", IdempotencyKey: "idem-1"}

	f.store.put("order:ord-1", "cached")

	first, err := f.service.ClearCache(ctx, actor)
	if err != nil {
		t.Fatalf("first clear failed: %v", err)
	}
	if f.store.has("order:ord-1") {
		t.Fatalf("cache not cleared")
	}

	f.store.put("order:ord-2", "cached again")
	second, err := f.service.ClearCache(ctx, actor)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !f.store.has("order:ord-2") {
		t.Fatalf("replay must not clear again")
	}
	if !first.ClearedAt.Equal(second.ClearedAt) || first.ActorID != second.ActorID {
		t.Fatalf("replay returned a different outcome: %+v vs %+v", first, second)
	}
	if f.store.clearCalls != 1 {
		t.Fatalf("clear ran %d times, want 1", f.store.clearCalls)
	}
}

func TestIdempotencyKeyReusedWithDifferentRequest(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	actor := application.Actor{SubjectID: "admin-1", IdempotencyKey: "idem-2"}

	if _, err := f.service.InvalidatePattern(ctx, actor, "order:*"); err != nil {
		t.Fatalf("first invalidate failed: %v", err)
	}
	_, err := f.service.InvalidatePattern(ctx, actor, "customer:*")
	if !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestInvalidatePatternCountsDeletes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	actor := application.Actor{SubjectID: "admin-1", IdempotencyKey: "idem-3"}

	f.store.put("order:ord-1", "a")
	f.store.put("order:ord-2", "b")
	f.store.put("customer:cust-1", "c")

	result, err := f.service.InvalidatePattern(ctx, actor, "order:*")
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if result.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", result.Deleted)
	}
	if !f.store.has("customer:cust-1") {
		t.Fatalf("pattern overreached")
	}
}

func TestInvalidateTag(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	actor := application.Actor{SubjectID: "admin-1", IdempotencyKey: "idem-4"}

	f.store.put("order:ord-1", "a")
	f.store.put("order_line:line-1", "b")
	f.store.put("product:prod-1", "c")

	result, err := f.service.InvalidateTag(ctx, actor, "orders")
	if err != nil {
		t.Fatalf("tag invalidate failed: %v", err)
	}
	if result.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", result.Deleted)
	}
	if !f.store.has("product:prod-1") {
		t.Fatalf("catalog key must survive the orders tag")
	}

	_, err = f.service.InvalidateTag(ctx, application.Actor{IdempotencyKey: "idem-5"}, "bogus")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown tag, got %v", err)
	}
}

func TestStatsReflectsCounters(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.store.put("order:ord-1", "a")
	recordOperations(f, 3, 1)

	stats := f.service.Stats(ctx)
	if stats.Hits != 3 || stats.Misses != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
	if stats.HitRate != 0.75 {
		t.Fatalf("hit rate = %v, want 0.75", stats.HitRate)
	}
	if stats.KeyCount != 1 {
		t.Fatalf("key count = %d, want 1", stats.KeyCount)
	}
}

func TestRunLoadTestAgainstFlakyStore(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	// Roughly 2% of operations degrade silently.
	f.store.failEveryN = 50

	report, err := f.service.RunLoadTest(ctx, 1000)
	if err != nil {
		t.Fatalf("load test failed: %v", err)
	}
	if report.Operations != 1000 {
		t.Fatalf("operations = %d, want 1000", report.Operations)
	}
	if report.StoreFailures == 0 {
		t.Fatalf("expected injected store failures to be observed")
	}
	if report.Successes < 950 {
		t.Fatalf("successes = %d, want at least 950", report.Successes)
	}
	if report.Hits+report.Misses == 0 {
		t.Fatalf("load test recorded no reads")
	}
}

func TestRunLoadTestValidatesInput(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.service.RunLoadTest(context.Background(), 0)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
