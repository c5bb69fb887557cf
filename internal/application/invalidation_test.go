package application_test

import (
	"context"
	"testing"

	"github.com/millbrook/orderdesk/internal/application"
	"github.com/millbrook/orderdesk/internal/domain"
)

func TestInvalidateDeletesImmediateAndDefersRest(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.store.put("order:ord-1", "cached order")
	f.store.put("order:list:recent", "cached list")
	f.store.put("search:order:draft", "cached search")
	f.store.put("analytics:order:daily", "cached analytics")
	f.store.put("order:ord-2", "sibling order")
	f.store.put("customer:cust-9", "other entity")

	f.service.Invalidate(ctx, domain.InvalidationContext{
		EntityType: "order",
		EntityID:   "ord-1",
		Operation:  domain.OpUpdate,
	})

	// order:* covers the whole order keyspace, siblings included.
	for _, gone := range []string{"order:ord-1", "order:ord-2", "order:list:recent", "search:order:draft"} {
		if f.store.has(gone) {
			t.Fatalf("immediate pattern left key %q behind", gone)
		}
	}
	if !f.store.has("customer:cust-9") {
		t.Fatalf("unrelated entity key must survive")
	}
	if !f.store.has("analytics:order:daily") {
		t.Fatalf("deferred pattern must not delete inline")
	}

	if got := f.queue.pendingOfKind(domain.JobInvalidatePattern); got == 0 {
		t.Fatalf("expected deferred invalidation jobs, got none")
	}
	if got := f.queue.pendingWithDedupe("refresh:order_analytics_view"); got != 1 {
		t.Fatalf("expected one view refresh job, got %d", got)
	}
}

func TestInvalidateRecursesIntoRelatedEntities(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.store.put("customer:cust-1", "cached customer")
	f.store.put("customer:cust-1:orders", "cached aggregate")

	f.service.Invalidate(ctx, domain.InvalidationContext{
		EntityType: "order",
		EntityID:   "ord-1",
		Operation:  domain.OpCreate,
		RelatedEntities: []domain.EntityRef{
			{Type: "customer", ID: "cust-1"},
		},
	})

	if f.store.has("customer:cust-1") || f.store.has("customer:cust-1:orders") {
		t.Fatalf("related customer keys must be invalidated")
	}
	if got := f.queue.pendingWithDedupe("refresh:customer_ltv_view"); got != 1 {
		t.Fatalf("related write must schedule the customer view, got %d jobs", got)
	}
}

func TestInvalidateCollapsesBursts(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.service.Invalidate(ctx, domain.InvalidationContext{
			EntityType: "order",
			EntityID:   "ord-1",
			Operation:  domain.OpUpdate,
		})
	}

	if got := f.queue.pendingWithDedupe("refresh:order_analytics_view"); got != 1 {
		t.Fatalf("burst must collapse to one refresh job, got %d", got)
	}
	if got := f.queue.pendingWithDedupe("invalidate:analytics:order:*"); got != 1 {
		t.Fatalf("burst must collapse to one deferred invalidation, got %d", got)
	}
}

func TestInvalidateDisabledDoesNothing(t *testing.T) {
	t.Parallel()

	f := newFixtureWithConfig(application.Config{Enabled: false})
	ctx := context.Background()

	f.store.put("order:ord-1", "cached order")
	f.service.Invalidate(ctx, domain.InvalidationContext{
		EntityType: "order",
		EntityID:   "ord-1",
		Operation:  domain.OpUpdate,
	})

	if !f.store.has("order:ord-1") {
		t.Fatalf("disabled cache must not invalidate")
	}
	if got := f.queue.pendingOfKind(domain.JobInvalidatePattern); got != 0 {
		t.Fatalf("disabled cache must not enqueue, got %d jobs", got)
	}
}

func TestInvalidateBatchUnionsPatterns(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.store.put("order:ord-1", "a")
	f.store.put("order:ord-2", "b")
	f.store.put("order:list:recent", "c")

	f.service.InvalidateBatch(ctx, []domain.InvalidationContext{
		{EntityType: "order", EntityID: "ord-1", Operation: domain.OpUpdate},
		{EntityType: "order", EntityID: "ord-2", Operation: domain.OpUpdate},
	})

	if f.store.has("order:ord-1") || f.store.has("order:ord-2") || f.store.has("order:list:recent") {
		t.Fatalf("batch must delete the unioned immediate patterns")
	}
	if got := f.queue.pendingWithDedupe("refresh:order_analytics_view"); got != 1 {
		t.Fatalf("batch must schedule each view once, got %d", got)
	}
}

func TestDrainExecutesDeferredWork(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.store.put("analytics:order:daily", "stale analytics")
	f.store.put("order_analytics_view:summary", "stale view cache")

	f.service.Invalidate(ctx, domain.InvalidationContext{
		EntityType: "order",
		EntityID:   "ord-1",
		Operation:  domain.OpUpdate,
	})
	if err := f.drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	if f.store.has("analytics:order:daily") {
		t.Fatalf("deferred invalidation did not run")
	}
	if f.store.has("order_analytics_view:summary") {
		t.Fatalf("view cache must be invalidated after refresh")
	}
	if got := f.views.count("order_analytics_view"); got != 1 {
		t.Fatalf("view refreshed %d times, want 1", got)
	}

	stats, err := f.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Pending != 0 {
		t.Fatalf("queue not drained, %d pending", stats.Pending)
	}
}

func TestExecuteJobInvalidatesLiteralKey(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.store.put("customer:cust-9", "cached")
	payload := []byte(`{"pattern":"customer:cust-9","enqueued_at":"2026-03-01T00:00:00Z"}`)
	if err := f.service.ExecuteJob(ctx, domain.JobInvalidatePattern, payload); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if f.store.has("customer:cust-9") {
		t.Fatalf("literal key not deleted")
	}
}

func TestExecuteJobRejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if err := f.service.ExecuteJob(ctx, domain.JobInvalidatePattern, []byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := f.service.ExecuteJob(ctx, domain.JobRefreshView, []byte(`{"view":""}`)); err == nil {
		t.Fatalf("expected missing view error")
	}
	if err := f.service.ExecuteJob(ctx, "no-such-kind", []byte(`{}`)); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestCachedReadThrough(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) (string, error) {
		loads++
		return "loaded-value", nil
	}

	first, err := application.Cached(ctx, f.service, "test.endpoint", "test:key", 0, loader)
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	second, err := application.Cached(ctx, f.service, "test.endpoint", "test:key", 0, loader)
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}

	if first != "loaded-value" || second != "loaded-value" {
		t.Fatalf("unexpected values: %q, %q", first, second)
	}
	if loads != 1 {
		t.Fatalf("loader ran %d times, want 1", loads)
	}
	if rate := f.service.HitRate(); rate != 0.5 {
		t.Fatalf("hit rate = %v, want 0.5", rate)
	}
}
