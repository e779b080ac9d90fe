package alerting

import (
	"fmt"
	"math"
	"time"
)

// RuleType selects how a metric value is judged against its rule.
type RuleType string

const (
	RuleThresholdAbove RuleType = "threshold_above"
	RuleThresholdBelow RuleType = "threshold_below"
	RulePctChange      RuleType = "pct_change"
	RuleRateOfChange   RuleType = "rate_of_change"
	RuleZScore         RuleType = "zscore"
)

// Rule binds one metric to one evaluation and its trigger threshold.
type Rule struct {
	Name      string
	Metric    string
	Type      RuleType
	Threshold float64
	Window    int // history samples for pct_change and zscore
	Cooldown  time.Duration
}

// minimum samples before statistical rules produce a verdict
const (
	minPctChangeSamples = 3
	minZScoreSamples    = 5
)

// evaluate judges the newest sample against the rule. history is ordered
// oldest first and already includes the newest value as its last element.
// Statistical rules stay quiet until enough history accumulates.
func evaluate(rule Rule, history []float64) (breached bool, message string) {
	if len(history) == 0 {
		return false, ""
	}
	value := history[len(history)-1]

	switch rule.Type {
	case RuleThresholdAbove:
		if value > rule.Threshold {
			return true, fmt.Sprintf("%s=%.4f above threshold %.4f", rule.Metric, value, rule.Threshold)
		}
	case RuleThresholdBelow:
		if value < rule.Threshold {
			return true, fmt.Sprintf("%s=%.4f below threshold %.4f", rule.Metric, value, rule.Threshold)
		}
	case RulePctChange:
		if len(history) < minPctChangeSamples {
			return false, ""
		}
		avg := mean(window(history[:len(history)-1], rule.Window))
		if avg == 0 {
			return false, ""
		}
		change := math.Abs(value-avg) / math.Abs(avg) * 100
		if change > rule.Threshold {
			return true, fmt.Sprintf("%s=%.4f moved %.1f%% from rolling average %.4f", rule.Metric, value, change, avg)
		}
	case RuleRateOfChange:
		if len(history) < 2 {
			return false, ""
		}
		prev := history[len(history)-2]
		if prev == 0 {
			return false, ""
		}
		change := math.Abs(value-prev) / math.Abs(prev) * 100
		if change > rule.Threshold {
			return true, fmt.Sprintf("%s changed %.1f%% in one interval (%.4f -> %.4f)", rule.Metric, change, prev, value)
		}
	case RuleZScore:
		if len(history) < minZScoreSamples {
			return false, ""
		}
		base := window(history[:len(history)-1], rule.Window)
		m := mean(base)
		sd := stddev(base, m)
		if sd == 0 {
			return false, ""
		}
		z := math.Abs(value-m) / sd
		if z > rule.Threshold {
			return true, fmt.Sprintf("%s=%.4f is %.2f sigma from mean %.4f", rule.Metric, value, z, m)
		}
	}
	return false, ""
}

// window returns the last n samples, or all of them when n is zero or
// larger than the history.
func window(history []float64, n int) []float64 {
	if n <= 0 || n >= len(history) {
		return history
	}
	return history[len(history)-n:]
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
