package domain

import "time"

// HealthState classifies a subsystem. Combined health is the worst of its inputs.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// Worse returns the more severe of two states.
func (h HealthState) Worse(other HealthState) HealthState {
	if h.rank() >= other.rank() {
		return h
	}
	return other
}

func (h HealthState) rank() int {
	switch h {
	case HealthUnhealthy:
		return 2
	case HealthDegraded:
		return 1
	default:
		return 0
	}
}

// ComponentCheck is one subsystem's contribution to the overall report.
type ComponentCheck struct {
	Name        string      `json:"name"`
	Status      HealthState `json:"status"`
	Detail      string      `json:"detail,omitempty"`
	LastChecked time.Time   `json:"last_checked"`
}

// HealthReport is derived on demand, never stored.
type HealthReport struct {
	Status        HealthState               `json:"status"`
	Timestamp     time.Time                 `json:"timestamp"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	Version       string                    `json:"version"`
	Checks        map[string]ComponentCheck `json:"checks"`
}

// AlertType enumerates the alert conditions the monitor evaluates.
type AlertType string

const (
	AlertHitRateLow          AlertType = "hit_rate_low"
	AlertMemoryHigh          AlertType = "memory_high"
	AlertConnectionError     AlertType = "connection_error"
	AlertPerformanceDegraded AlertType = "performance_degraded"
)

// AlertSeverity orders alerts for operators.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a deduplicated monitor finding. An alert with identical
// (type, message) within the dedup window is suppressed.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  AlertSeverity  `json:"severity"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// PerformanceMetric tracks one logical endpoint with a streaming running
// average rather than stored samples.
type PerformanceMetric struct {
	Endpoint          string    `json:"endpoint"`
	HitCount          int64     `json:"hit_count"`
	MissCount         int64     `json:"miss_count"`
	TotalRequests     int64     `json:"total_requests"`
	AverageResponseMS float64   `json:"average_response_ms"`
	LastAccessedAt    time.Time `json:"last_accessed_at"`
}

// MetricsSnapshot is the full monitor readout for the admin surface.
type MetricsSnapshot struct {
	Hits            int64               `json:"hits"`
	Misses          int64               `json:"misses"`
	TotalOperations int64               `json:"total_operations"`
	HitRate         float64             `json:"hit_rate"`
	TargetHitRate   float64             `json:"target_hit_rate"`
	Endpoints       []PerformanceMetric `json:"endpoints"`
	Alerts          []Alert             `json:"alerts"`
	Recommendations []string            `json:"recommendations"`
	Queue           QueueStats          `json:"queue"`
	GeneratedAt     time.Time           `json:"generated_at"`
}
