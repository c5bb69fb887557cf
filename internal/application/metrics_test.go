package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/millbrook/orderdesk/internal/domain"
)

func recordOperations(f *fixture, hits, misses int) {
	for i := 0; i < hits; i++ {
		f.service.RecordHit("test.endpoint", time.Millisecond)
	}
	for i := 0; i < misses; i++ {
		f.service.RecordMiss("test.endpoint", time.Millisecond)
	}
}

func TestSnapshotRaisesHitRateAlert(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	recordOperations(f, 30, 90)
	snap := f.service.Snapshot(ctx)

	if snap.TotalOperations != 120 {
		t.Fatalf("total = %d, want 120", snap.TotalOperations)
	}
	if snap.HitRate != 0.25 {
		t.Fatalf("hit rate = %v, want 0.25", snap.HitRate)
	}

	found := false
	for _, alert := range snap.Alerts {
		if alert.Type == domain.AlertHitRateLow {
			found = true
			if alert.Severity != domain.SeverityWarning {
				t.Fatalf("unexpected severity %q", alert.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("expected hit rate alert, got %v", snap.Alerts)
	}
	if len(snap.Recommendations) == 0 {
		t.Fatalf("expected hit rate recommendation")
	}
}

func TestSnapshotBelowMinOperationsStaysQuiet(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	recordOperations(f, 1, 50)
	snap := f.service.Snapshot(ctx)

	for _, alert := range snap.Alerts {
		if alert.Type == domain.AlertHitRateLow {
			t.Fatalf("hit rate must not alert before %d operations", 100)
		}
	}
}

func TestAlertsDeduplicate(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	recordOperations(f, 0, 200)
	_ = f.service.Snapshot(ctx)
	snap := f.service.Snapshot(ctx)

	count := 0
	for _, alert := range snap.Alerts {
		if alert.Type == domain.AlertHitRateLow {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("identical alert raised %d times inside the dedup window", count)
	}
}

func TestMemoryAlertSeverityTiers(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.store.memUsed = int64(1<<30) + 1
	snap := f.service.Snapshot(ctx)
	var warning *domain.Alert
	for i, alert := range snap.Alerts {
		if alert.Type == domain.AlertMemoryHigh {
			warning = &snap.Alerts[i]
		}
	}
	if warning == nil || warning.Severity != domain.SeverityWarning {
		t.Fatalf("expected warning memory alert, got %v", snap.Alerts)
	}

	f2 := newFixture()
	f2.store.memUsed = int64(2<<30) + 1
	snap2 := f2.service.Snapshot(ctx)
	var critical *domain.Alert
	for i, alert := range snap2.Alerts {
		if alert.Type == domain.AlertMemoryHigh {
			critical = &snap2.Alerts[i]
		}
	}
	if critical == nil || critical.Severity != domain.SeverityCritical {
		t.Fatalf("expected critical memory alert, got %v", snap2.Alerts)
	}
}

func TestHealthWorstOfChecks(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	report := f.service.Health(ctx)
	if report.Status != domain.HealthHealthy {
		t.Fatalf("fresh service must be healthy, got %q", report.Status)
	}
	if len(report.Checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(report.Checks))
	}

	f.store.pingErr = errors.New("connection refused")
	report = f.service.Health(ctx)
	if report.Status != domain.HealthUnhealthy {
		t.Fatalf("store failure must be unhealthy, got %q", report.Status)
	}
	if report.Checks["cache_store"].Status != domain.HealthUnhealthy {
		t.Fatalf("store check not unhealthy: %+v", report.Checks["cache_store"])
	}
}

func TestHealthDegradedOnDeadLetters(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.service.Invalidate(ctx, domain.InvalidationContext{
		EntityType: "order",
		EntityID:   "ord-1",
		Operation:  domain.OpUpdate,
	})
	jobs := f.queue.pendingJobs()
	if len(jobs) == 0 {
		t.Fatalf("expected pending jobs")
	}
	if err := f.queue.MarkDeadLettered(ctx, jobs[0].JobID, "", "gave up", time.Now()); err != nil {
		t.Fatalf("dead letter: %v", err)
	}

	report := f.service.Health(ctx)
	if report.Status != domain.HealthDegraded {
		t.Fatalf("dead letters must degrade health, got %q", report.Status)
	}
}

func TestHealthDegradedOnLowHitRate(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	// 70% against the default 80% target: below target, above 0.8x target.
	recordOperations(f, 140, 60)
	report := f.service.Health(ctx)
	if report.Status != domain.HealthDegraded {
		t.Fatalf("low hit rate must degrade health, got %q", report.Status)
	}
}

func TestHealthUnhealthyOnVeryLowHitRate(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	recordOperations(f, 10, 190)
	report := f.service.Health(ctx)
	if report.Status != domain.HealthUnhealthy {
		t.Fatalf("very low hit rate must be unhealthy, got %q", report.Status)
	}
}

func TestResetMetrics(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	recordOperations(f, 0, 200)
	_ = f.service.Snapshot(ctx)
	f.service.ResetMetrics()

	snap := f.service.Snapshot(ctx)
	if snap.TotalOperations != 0 {
		t.Fatalf("counters survive reset: %d", snap.TotalOperations)
	}
	if len(snap.Alerts) != 0 {
		t.Fatalf("alerts survive reset: %v", snap.Alerts)
	}
}

func TestSweepKeepsActiveState(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	recordOperations(f, 0, 200)
	before := f.service.Snapshot(ctx)
	f.service.Sweep()
	after := f.service.Snapshot(ctx)

	if len(after.Endpoints) != len(before.Endpoints) {
		t.Fatalf("sweep removed a recently active endpoint")
	}
	if len(after.Alerts) == 0 {
		t.Fatalf("sweep removed a recent alert")
	}
}

func TestAlertReRaisedAfterDedupWindow(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	recordOperations(f, 0, 200)
	_ = f.service.Snapshot(ctx)

	f.clock.advance(16 * time.Minute)
	snap := f.service.Snapshot(ctx)

	count := 0
	for _, alert := range snap.Alerts {
		if alert.Type == domain.AlertHitRateLow {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected a second alert once the dedup window passed, got %d", count)
	}
}

func TestSweepPrunesExpiredAlerts(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.store.memUsed = int64(1<<30) + 1
	if snap := f.service.Snapshot(ctx); len(snap.Alerts) == 0 {
		t.Fatalf("expected a memory alert")
	}

	// Condition clears, but the stale alert lingers until the sweep.
	f.store.memUsed = 0
	f.clock.advance(2 * time.Hour)
	if snap := f.service.Snapshot(ctx); len(snap.Alerts) == 0 {
		t.Fatalf("stale alert should survive until the sweep runs")
	}

	f.service.Sweep()
	if snap := f.service.Snapshot(ctx); len(snap.Alerts) != 0 {
		t.Fatalf("alerts older than retention must be pruned, got %v", snap.Alerts)
	}
}

func TestSweepCollectsIdleLowVolumeEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.service.RecordHit("orders.rarely", time.Millisecond)
	}
	f.clock.advance(2 * time.Hour)
	f.service.RecordHit("orders.busy", time.Millisecond)

	f.service.Sweep()
	snap := f.service.Snapshot(ctx)

	for _, m := range snap.Endpoints {
		if m.Endpoint == "orders.rarely" {
			t.Fatalf("idle low-volume endpoint survived the sweep")
		}
	}
	found := false
	for _, m := range snap.Endpoints {
		if m.Endpoint == "orders.busy" {
			found = true
		}
	}
	if !found {
		t.Fatalf("active endpoint must survive the sweep")
	}
}
