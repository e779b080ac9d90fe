package models

import "time"

// AlertState is the lifecycle state of a metric alert.
type AlertState string

const (
	AlertOK        AlertState = "ok"
	AlertTriggered AlertState = "triggered"
)

// AlertEvent is a single state transition for a named alert rule.
type AlertEvent struct {
	Alert     string
	Rule      string // "threshold", "pct_change", "rate_of_change", "zscore"
	Metric    string
	Value     float64
	Threshold float64
	State     AlertState
	Message   string
	At        time.Time
}
