package alerting

import (
	"context"
	"sync"
	"time"

	"Kessan/internal/datasource"
	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	applogger "Kessan/pkg/logger"
)

const (
	defaultCheckInterval = time.Minute
	defaultCooldown      = 15 * time.Minute
	defaultHistoryCap    = 60
)

// MetricFunc recomputes one named business metric.
type MetricFunc func(ctx context.Context) (float64, error)

// CheckerOption customizes the alert checker.
type CheckerOption func(*Checker)

func WithCheckInterval(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithDefaultCooldown(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.cooldown = d
		}
	}
}

func WithHistoryCap(n int) CheckerOption {
	return func(c *Checker) {
		if n > 1 {
			c.historyCap = n
		}
	}
}

type alertStatus struct {
	state       models.AlertState
	triggeredAt time.Time
}

// Checker recomputes business metrics on a timer and walks each rule
// through triggered/resolved transitions.
type Checker struct {
	logger   *applogger.Logger
	metrics  repository.Metrics
	store    repository.AlertStore
	notifier Notifier

	interval   time.Duration
	cooldown   time.Duration
	historyCap int
	now        func() time.Time

	mu      sync.Mutex
	sources map[string]MetricFunc
	rules   []Rule
	history map[string][]float64
	status  map[string]*alertStatus

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

func NewChecker(
	lgr *applogger.Logger,
	metrics repository.Metrics,
	store repository.AlertStore,
	notifier Notifier,
	opts ...CheckerOption,
) *Checker {
	c := &Checker{
		logger:     lgr,
		metrics:    metrics,
		store:      store,
		notifier:   notifier,
		interval:   defaultCheckInterval,
		cooldown:   defaultCooldown,
		historyCap: defaultHistoryCap,
		now:        time.Now,
		sources:    make(map[string]MetricFunc),
		history:    make(map[string][]float64),
		status:     make(map[string]*alertStatus),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterMetric binds a name to its recompute function. Re-registering
// a name replaces the previous function.
func (c *Checker) RegisterMetric(name string, fn MetricFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = fn
}

// AddRule appends a rule. Rules without a cooldown inherit the checker
// default.
func (c *Checker) AddRule(rule Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rule.Cooldown <= 0 {
		rule.Cooldown = c.cooldown
	}
	c.rules = append(c.rules, rule)
	c.status[rule.Name] = &alertStatus{state: models.AlertOK}
}

// Rules returns a copy of the registered rules.
func (c *Checker) Rules() []Rule {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// States reports the current state per alert name.
func (c *Checker) States() map[string]models.AlertState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]models.AlertState, len(c.status))
	for name, st := range c.status {
		out[name] = st.state
	}
	return out
}

// Start launches the polling loop. Idempotent while running.
func (c *Checker) Start() {
	c.mu.Lock()
	if c.loopCancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.loopCancel = cancel
	c.loopDone = make(chan struct{})
	c.mu.Unlock()

	go c.loop(ctx)
	c.logger.Info("alert checker started", applogger.Duration("interval", c.interval))
}

// Stop cancels the loop and waits for the current iteration to finish.
func (c *Checker) Stop() {
	c.mu.Lock()
	cancel := c.loopCancel
	done := c.loopDone
	c.loopCancel = nil
	c.loopDone = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("alert checker stopped")
}

func (c *Checker) loop(ctx context.Context) {
	defer close(c.loopDone)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.CheckOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckOnce(ctx)
		}
	}
}

// CheckOnce recomputes every metric, evaluates every rule, and emits
// transitions. Metric recompute failures skip that metric's rules for
// this iteration.
func (c *Checker) CheckOnce(ctx context.Context) {
	c.mu.Lock()
	sources := make(map[string]MetricFunc, len(c.sources))
	for name, fn := range c.sources {
		sources[name] = fn
	}
	c.mu.Unlock()

	values := make(map[string]float64, len(sources))
	for name, fn := range sources {
		value, err := fn(ctx)
		if err != nil {
			c.logger.Warn("metric recompute failed",
				applogger.String("metric", name),
				applogger.Error(err))
			c.metrics.RecordError("alert_metric")
			continue
		}
		values[name] = value
	}

	c.mu.Lock()
	for name, value := range values {
		h := append(c.history[name], value)
		if len(h) > c.historyCap {
			h = h[len(h)-c.historyCap:]
		}
		c.history[name] = h
	}

	type pending struct {
		event *models.AlertEvent
	}
	var out []pending

	now := c.now()
	for _, rule := range c.rules {
		if _, ok := values[rule.Metric]; !ok {
			continue
		}
		history := c.history[rule.Metric]
		breached, message := evaluate(rule, history)

		st := c.status[rule.Name]
		if st == nil {
			st = &alertStatus{state: models.AlertOK}
			c.status[rule.Name] = st
		}

		switch {
		case breached && st.state == models.AlertOK:
			if !st.triggeredAt.IsZero() && now.Sub(st.triggeredAt) < rule.Cooldown {
				continue
			}
			st.state = models.AlertTriggered
			st.triggeredAt = now
			out = append(out, pending{event: &models.AlertEvent{
				Alert:     rule.Name,
				Rule:      string(rule.Type),
				Metric:    rule.Metric,
				Value:     history[len(history)-1],
				Threshold: rule.Threshold,
				State:     models.AlertTriggered,
				Message:   message,
				At:        now,
			}})
		case !breached && st.state == models.AlertTriggered:
			st.state = models.AlertOK
			out = append(out, pending{event: &models.AlertEvent{
				Alert:     rule.Name,
				Rule:      string(rule.Type),
				Metric:    rule.Metric,
				Value:     history[len(history)-1],
				Threshold: rule.Threshold,
				State:     models.AlertOK,
				Message:   rule.Metric + " back inside bounds",
				At:        now,
			}})
		}
	}
	c.mu.Unlock()

	for _, p := range out {
		c.emit(ctx, p.event)
	}
}

func (c *Checker) emit(ctx context.Context, event *models.AlertEvent) {
	transition := "resolved"
	if event.State == models.AlertTriggered {
		transition = "triggered"
	}
	c.metrics.RecordAlert(event.Alert, transition)

	c.logger.Info("alert transition",
		applogger.String("alert", event.Alert),
		applogger.String("transition", transition),
		applogger.Float64("value", event.Value),
		applogger.String("message", event.Message))

	if c.store != nil {
		if err := c.store.Insert(ctx, event); err != nil {
			c.logger.Error("failed to persist alert event",
				applogger.String("alert", event.Alert),
				applogger.Error(err))
		}
	}
	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, event); err != nil {
			c.logger.Error("failed to deliver alert",
				applogger.String("alert", event.Alert),
				applogger.Error(err))
		}
	}
}

// RegisterStandardMetrics wires the stock business metrics computed from
// the stores and the data source registry.
func RegisterStandardMetrics(
	c *Checker,
	links repository.LinkStore,
	news repository.NewsStore,
	registry *datasource.Registry,
) {
	c.RegisterMetric("news_link_rate", func(ctx context.Context) (float64, error) {
		stats, err := links.Stats(ctx, 1)
		if err != nil {
			return 0, err
		}
		return stats.LinkRate, nil
	})
	c.RegisterMetric("news_avg_relevance", func(ctx context.Context) (float64, error) {
		stats, err := links.Stats(ctx, 1)
		if err != nil {
			return 0, err
		}
		return stats.AvgRelevance, nil
	})
	c.RegisterMetric("news_article_count", func(ctx context.Context) (float64, error) {
		n, err := news.CountAll(ctx)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	})
	c.RegisterMetric("provider_healthy_ratio", func(ctx context.Context) (float64, error) {
		checks := registry.HealthSnapshot()
		if len(checks) == 0 {
			return 1, nil
		}
		healthy := 0
		for _, check := range checks {
			if check.Healthy() {
				healthy++
			}
		}
		return float64(healthy) / float64(len(checks)), nil
	})
}
