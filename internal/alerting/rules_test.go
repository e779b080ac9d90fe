package alerting

import "testing"

func TestEvaluateThresholds(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		history []float64
		want    bool
	}{
		{"above breached", Rule{Metric: "err_rate", Type: RuleThresholdAbove, Threshold: 0.05}, []float64{0.01, 0.08}, true},
		{"above ok", Rule{Metric: "err_rate", Type: RuleThresholdAbove, Threshold: 0.05}, []float64{0.01, 0.03}, false},
		{"above equal not breached", Rule{Metric: "err_rate", Type: RuleThresholdAbove, Threshold: 0.05}, []float64{0.05}, false},
		{"below breached", Rule{Metric: "link_rate", Type: RuleThresholdBelow, Threshold: 0.2}, []float64{0.5, 0.1}, true},
		{"below ok", Rule{Metric: "link_rate", Type: RuleThresholdBelow, Threshold: 0.2}, []float64{0.5, 0.4}, false},
		{"empty history", Rule{Metric: "x", Type: RuleThresholdAbove, Threshold: 1}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := evaluate(tt.rule, tt.history)
			if got != tt.want {
				t.Fatalf("evaluate() = %v, want %v", got, tt.want)
			}
			if got && msg == "" {
				t.Fatal("breach without message")
			}
		})
	}
}

func TestEvaluatePctChange(t *testing.T) {
	rule := Rule{Metric: "m", Type: RulePctChange, Threshold: 50}

	if got, _ := evaluate(rule, []float64{10, 16}); got {
		t.Fatal("pct_change fired before minimum samples")
	}
	// rolling average of {10, 10, 10} is 10; 16 is a 60% move
	if got, _ := evaluate(rule, []float64{10, 10, 10, 16}); !got {
		t.Fatal("60%% move past a 50%% threshold not detected")
	}
	if got, _ := evaluate(rule, []float64{10, 10, 10, 12}); got {
		t.Fatal("20%% move fired a 50%% threshold")
	}
	if got, _ := evaluate(rule, []float64{0, 0, 0, 5}); got {
		t.Fatal("zero baseline must stay quiet")
	}
}

func TestEvaluateRateOfChange(t *testing.T) {
	rule := Rule{Metric: "m", Type: RuleRateOfChange, Threshold: 30}

	if got, _ := evaluate(rule, []float64{100, 150}); !got {
		t.Fatal("50%% one-step change not detected")
	}
	if got, _ := evaluate(rule, []float64{100, 120}); got {
		t.Fatal("20%% one-step change fired a 30%% threshold")
	}
	if got, _ := evaluate(rule, []float64{150}); got {
		t.Fatal("single sample cannot have a rate of change")
	}
}

func TestEvaluateZScore(t *testing.T) {
	rule := Rule{Metric: "m", Type: RuleZScore, Threshold: 2}

	stable := []float64{10, 11, 10, 9, 10, 10, 11}
	if got, _ := evaluate(rule, append(stable, 10)); got {
		t.Fatal("in-band value fired the anomaly rule")
	}
	if got, msg := evaluate(rule, append(stable, 30)); !got {
		t.Fatal("far outlier not detected")
	} else if msg == "" {
		t.Fatal("breach without message")
	}

	if got, _ := evaluate(rule, []float64{10, 10, 30}); got {
		t.Fatal("zscore fired before minimum samples")
	}
	if got, _ := evaluate(rule, []float64{10, 10, 10, 10, 10, 30}); got {
		t.Fatal("zero variance baseline must stay quiet")
	}
}

func TestEvaluateZScoreWindow(t *testing.T) {
	rule := Rule{Metric: "m", Type: RuleZScore, Threshold: 2, Window: 5}

	// old regime far away, recent window is tight around 100
	history := []float64{1000, 1000, 100, 101, 99, 100, 100, 115}
	if got, _ := evaluate(rule, history); !got {
		t.Fatal("outlier vs recent window not detected")
	}
}
