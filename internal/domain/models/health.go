package models

import "time"

// HealthState classifies the result of a data source health probe.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// HealthCheck is one probe result for a data source.
type HealthCheck struct {
	Source    string
	State     HealthState
	Latency   time.Duration
	Error     string
	CheckedAt time.Time
}

// Healthy reports whether the source can serve requests.
func (h HealthCheck) Healthy() bool {
	return h.State == HealthHealthy || h.State == HealthDegraded
}
