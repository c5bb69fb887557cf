package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/millbrook/orderdesk/internal/domain"
)

const (
	alertDedupWindow    = 15 * time.Minute
	alertRetention      = time.Hour
	endpointIdleCutoff  = time.Hour
	endpointMinRequests = 10

	memoryWarnBytes     = int64(1 << 30)
	memoryCriticalBytes = int64(2 << 30)
	queueWarnBacklog    = int64(1000)
	slowEndpointMS      = 250.0
)

// RecordHit folds one cache hit into the endpoint's running average.
func (s *Service) RecordHit(endpoint string, elapsed time.Duration) {
	s.record(endpoint, elapsed, true)
}

// RecordMiss folds one cache miss into the endpoint's running average.
func (s *Service) RecordMiss(endpoint string, elapsed time.Duration) {
	s.record(endpoint, elapsed, false)
}

func (s *Service) record(endpoint string, elapsed time.Duration, hit bool) {
	now := s.nowFn()
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()

	if hit {
		s.hits++
	} else {
		s.misses++
	}

	m, ok := s.endpoints[endpoint]
	if !ok {
		m = &domain.PerformanceMetric{Endpoint: endpoint}
		s.endpoints[endpoint] = m
	}
	if hit {
		m.HitCount++
	} else {
		m.MissCount++
	}
	m.TotalRequests++
	ms := float64(elapsed) / float64(time.Millisecond)
	m.AverageResponseMS += (ms - m.AverageResponseMS) / float64(m.TotalRequests)
	m.LastAccessedAt = now
}

// HitRate is hits over total operations, zero when nothing has been recorded.
func (s *Service) HitRate() float64 {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	return hitRate(s.hits, s.misses)
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// ResetMetrics zeroes counters, endpoint averages and the alert history.
func (s *Service) ResetMetrics() {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	s.hits = 0
	s.misses = 0
	s.endpoints = make(map[string]*domain.PerformanceMetric)
	s.alerts = nil
}

// Snapshot assembles the monitor readout and evaluates alert conditions as a
// side effect, so polling the admin surface doubles as the alert sweep.
func (s *Service) Snapshot(ctx context.Context) domain.MetricsSnapshot {
	now := s.nowFn()

	queueStats, err := s.queue.Stats(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "queue stats unavailable",
			"operation", "metrics_snapshot",
			"outcome", "failure",
			"error", err,
		)
	}

	s.evaluateAlerts(ctx, queueStats)

	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()

	endpoints := make([]domain.PerformanceMetric, 0, len(s.endpoints))
	for _, m := range s.endpoints {
		endpoints = append(endpoints, *m)
	}
	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].TotalRequests > endpoints[j].TotalRequests
	})

	snap := domain.MetricsSnapshot{
		Hits:            s.hits,
		Misses:          s.misses,
		TotalOperations: s.hits + s.misses,
		HitRate:         hitRate(s.hits, s.misses),
		TargetHitRate:   s.cfg.TargetHitRate,
		Endpoints:       endpoints,
		Alerts:          append([]domain.Alert(nil), s.alerts...),
		Queue:           queueStats,
		GeneratedAt:     now,
	}
	snap.Recommendations = recommendations(snap, s.cfg)
	return snap
}

func recommendations(snap domain.MetricsSnapshot, cfg Config) []string {
	var out []string
	if snap.TotalOperations >= cfg.MinOperations && snap.HitRate < cfg.TargetHitRate {
		out = append(out, fmt.Sprintf("hit rate %.1f%% is below the %.0f%% target; consider longer TTLs or additional warmup jobs", snap.HitRate*100, cfg.TargetHitRate*100))
	}
	for _, m := range snap.Endpoints {
		if m.TotalRequests >= endpointMinRequests && m.AverageResponseMS > slowEndpointMS {
			out = append(out, fmt.Sprintf("endpoint %s averages %.0fms; its loader may need indexing or a dedicated warmup job", m.Endpoint, m.AverageResponseMS))
		}
	}
	if snap.Queue.DeadLettered > 0 {
		out = append(out, fmt.Sprintf("%d dead-lettered invalidation jobs need operator review", snap.Queue.DeadLettered))
	}
	return out
}

// evaluateAlerts checks the alertable conditions and raises deduplicated
// alerts for any that hold.
func (s *Service) evaluateAlerts(ctx context.Context, queueStats domain.QueueStats) {
	s.metricsMu.Lock()
	hits, misses := s.hits, s.misses
	s.metricsMu.Unlock()

	if total := hits + misses; total >= s.cfg.MinOperations {
		if rate := hitRate(hits, misses); rate < s.cfg.TargetHitRate {
			s.raiseAlert(domain.Alert{
				Type:     domain.AlertHitRateLow,
				Severity: domain.SeverityWarning,
				Message:  fmt.Sprintf("cache hit rate %.1f%% below target %.0f%%", rate*100, s.cfg.TargetHitRate*100),
				Data:     map[string]any{"hit_rate": rate, "operations": total},
			})
		}
	}

	if used, err := s.store.MemoryUsedBytes(ctx); err == nil && used >= memoryWarnBytes {
		severity := domain.SeverityWarning
		if used >= memoryCriticalBytes {
			severity = domain.SeverityCritical
		}
		s.raiseAlert(domain.Alert{
			Type:     domain.AlertMemoryHigh,
			Severity: severity,
			Message:  fmt.Sprintf("cache memory usage at %d MiB", used>>20),
			Data:     map[string]any{"used_bytes": used},
		})
	}

	if err := s.store.Ping(ctx); err != nil {
		s.raiseAlert(domain.Alert{
			Type:     domain.AlertConnectionError,
			Severity: domain.SeverityCritical,
			Message:  "cache store unreachable",
			Data:     map[string]any{"error": err.Error()},
		})
	}

	if queueStats.Pending >= queueWarnBacklog {
		s.raiseAlert(domain.Alert{
			Type:     domain.AlertPerformanceDegraded,
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("invalidation backlog at %d pending jobs", queueStats.Pending),
			Data:     map[string]any{"pending": queueStats.Pending},
		})
	}
}

// raiseAlert appends unless an identical (type, message) alert fired within
// the dedup window.
func (s *Service) raiseAlert(alert domain.Alert) {
	now := s.nowFn()
	alert.Timestamp = now

	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()

	for i := len(s.alerts) - 1; i >= 0; i-- {
		existing := s.alerts[i]
		if existing.Type == alert.Type && existing.Message == alert.Message &&
			now.Sub(existing.Timestamp) < alertDedupWindow {
			return
		}
	}
	s.alerts = append(s.alerts, alert)
	s.logger.Warn("cache alert raised",
		"operation", "raise_alert",
		"alert_type", string(alert.Type),
		"severity", string(alert.Severity),
		"message", alert.Message,
	)
}

// Sweep prunes expired alerts and endpoint entries that went quiet without
// ever accumulating meaningful traffic.
func (s *Service) Sweep() {
	now := s.nowFn()
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()

	kept := s.alerts[:0]
	for _, a := range s.alerts {
		if now.Sub(a.Timestamp) < alertRetention {
			kept = append(kept, a)
		}
	}
	s.alerts = kept

	for endpoint, m := range s.endpoints {
		if now.Sub(m.LastAccessedAt) > endpointIdleCutoff && m.TotalRequests < endpointMinRequests {
			delete(s.endpoints, endpoint)
		}
	}
}

// RunSweeper periodically evaluates alert conditions and runs Sweep until
// the context ends.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.queue.Stats(ctx)
			if err != nil {
				s.logger.Warn("queue stats unavailable during sweep",
					"operation", "sweep",
					"outcome", "failure",
					"error", err,
				)
			}
			s.evaluateAlerts(ctx, stats)
			s.Sweep()
		}
	}
}

// Health reports combined health, worst-of across the store, the queue and
// the hit rate. The hit-rate check stays healthy until enough operations
// have accumulated to judge it.
func (s *Service) Health(ctx context.Context) domain.HealthReport {
	now := s.nowFn()
	checks := make(map[string]domain.ComponentCheck)
	overall := domain.HealthHealthy

	storeCheck := domain.ComponentCheck{Name: "cache_store", Status: domain.HealthHealthy, LastChecked: now}
	if err := s.store.Ping(ctx); err != nil {
		storeCheck.Status = domain.HealthUnhealthy
		storeCheck.Detail = err.Error()
	} else if used, err := s.store.MemoryUsedBytes(ctx); err == nil {
		switch {
		case used >= memoryCriticalBytes:
			storeCheck.Status = domain.HealthUnhealthy
			storeCheck.Detail = fmt.Sprintf("memory usage %d MiB", used>>20)
		case used >= memoryWarnBytes:
			storeCheck.Status = domain.HealthDegraded
			storeCheck.Detail = fmt.Sprintf("memory usage %d MiB", used>>20)
		}
	}
	checks["cache_store"] = storeCheck
	overall = overall.Worse(storeCheck.Status)

	queueCheck := domain.ComponentCheck{Name: "invalidation_queue", Status: domain.HealthHealthy, LastChecked: now}
	if stats, err := s.queue.Stats(ctx); err != nil {
		queueCheck.Status = domain.HealthUnhealthy
		queueCheck.Detail = err.Error()
	} else if stats.Pending >= queueWarnBacklog || stats.DeadLettered > 0 {
		queueCheck.Status = domain.HealthDegraded
		queueCheck.Detail = fmt.Sprintf("pending=%d dead_lettered=%d", stats.Pending, stats.DeadLettered)
	}
	checks["invalidation_queue"] = queueCheck
	overall = overall.Worse(queueCheck.Status)

	rateCheck := domain.ComponentCheck{Name: "hit_rate", Status: domain.HealthHealthy, LastChecked: now}
	s.metricsMu.Lock()
	hits, misses := s.hits, s.misses
	s.metricsMu.Unlock()
	if total := hits + misses; total >= s.cfg.MinOperations {
		rate := hitRate(hits, misses)
		switch {
		case rate < 0.8*s.cfg.TargetHitRate:
			rateCheck.Status = domain.HealthUnhealthy
			rateCheck.Detail = fmt.Sprintf("hit rate %.1f%% far below target %.0f%%", rate*100, s.cfg.TargetHitRate*100)
		case rate < s.cfg.TargetHitRate:
			rateCheck.Status = domain.HealthDegraded
			rateCheck.Detail = fmt.Sprintf("hit rate %.1f%% below target %.0f%%", rate*100, s.cfg.TargetHitRate*100)
		}
	}
	checks["hit_rate"] = rateCheck
	overall = overall.Worse(rateCheck.Status)

	return domain.HealthReport{
		Status:        overall,
		Timestamp:     now,
		UptimeSeconds: int64(now.Sub(s.startedAt).Seconds()),
		Version:       s.cfg.Version,
		Checks:        checks,
	}
}
