package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	applogger "Kessan/pkg/logger"
)

// RegistryOption configures Registry.
type RegistryOption func(*Registry)

// WithBreakerThreshold sets consecutive failures needed to open a breaker.
func WithBreakerThreshold(n uint32) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.breakerThreshold = n
		}
	}
}

// WithBreakerResetTimeout sets how long an open breaker stays open.
func WithBreakerResetTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.breakerReset = d
		}
	}
}

// WithHealthCacheTTL sets how long a cached health probe stays authoritative.
func WithHealthCacheTTL(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.healthTTL = d
		}
	}
}

// WithFailoverEnabled sets the initial failover flag.
func WithFailoverEnabled(enabled bool) RegistryOption {
	return func(r *Registry) {
		r.failover = enabled
	}
}

// Registry holds all adapters per capability, tracks their health and
// circuit breakers, and executes operations with priority-ordered failover.
type Registry struct {
	logger  *applogger.Logger
	metrics repository.Metrics

	mu       sync.RWMutex
	adapters map[string]Adapter
	breakers map[string]*gobreaker.CircuitBreaker[any]
	health   map[string]models.HealthCheck
	failover bool

	breakerThreshold uint32
	breakerReset     time.Duration
	healthTTL        time.Duration

	monitorMu     sync.Mutex
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(lgr *applogger.Logger, metrics repository.Metrics, opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:           lgr,
		metrics:          metrics,
		adapters:         make(map[string]Adapter),
		breakers:         make(map[string]*gobreaker.CircuitBreaker[any]),
		health:           make(map[string]models.HealthCheck),
		failover:         true,
		breakerThreshold: 5,
		breakerReset:     5 * time.Minute,
		healthTTL:        5 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an adapter under its unique name.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.adapters[name] = a
	r.breakers[name] = r.newBreaker(name)
	r.logger.Info("data source registered",
		applogger.String("source", name),
		applogger.String("capability", string(a.Capability())),
		applogger.Int("priority", a.Priority()))
	return nil
}

// Unregister removes an adapter and its breaker and health state.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; !exists {
		return fmt.Errorf("%w: %s", ErrAdapterNotFound, name)
	}
	delete(r.adapters, name)
	delete(r.breakers, name)
	delete(r.health, name)
	r.logger.Info("data source unregistered", applogger.String("source", name))
	return nil
}

// Get returns an adapter by name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.adapters[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, name)
	}
	return a, nil
}

// AdaptersByCapability returns all adapters of the capability sorted by
// ascending priority, regardless of registration order.
func (r *Registry) AdaptersByCapability(capability Capability) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Adapter
	for _, a := range r.adapters {
		if a.Capability() == capability {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() < out[j].Priority()
	})
	return out
}

// HealthyAdapters filters the capability's adapters to those enabled, not
// known-unhealthy, and with a closed breaker. A missing or stale health
// probe passes the filter; an adapter is only excluded once a fresh probe
// marked it non-healthy.
func (r *Registry) HealthyAdapters(capability Capability) []Adapter {
	adapters := r.AdaptersByCapability(capability)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, 0, len(adapters))
	for _, a := range adapters {
		if !a.Enabled() {
			continue
		}
		if r.breakerOpenLocked(a.Name()) {
			continue
		}
		if h, ok := r.health[a.Name()]; ok && time.Since(h.CheckedAt) < r.healthTTL {
			if h.State != models.HealthHealthy {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// PrimaryAdapter returns the first healthy adapter of the capability.
func (r *Registry) PrimaryAdapter(capability Capability) (Adapter, error) {
	healthy := r.HealthyAdapters(capability)
	if len(healthy) == 0 {
		return nil, &UnavailableError{Source: string(capability), Err: fmt.Errorf("no healthy adapters")}
	}
	return healthy[0], nil
}

// Operation runs one call against a chosen adapter.
type Operation func(ctx context.Context, a Adapter) (any, error)

// ExecuteWithFailover runs the operation over the priority-ordered healthy
// adapters of a capability. A RateLimitError propagates immediately without
// counting toward the breaker and without trying the next adapter. Other
// errors count toward the failing adapter's breaker and failover continues.
// When failover is disabled only the primary adapter gets one attempt.
func (r *Registry) ExecuteWithFailover(ctx context.Context, capability Capability, op Operation) (any, error) {
	candidates := r.HealthyAdapters(capability)
	if len(candidates) == 0 {
		return nil, &UnavailableError{Source: string(capability), Err: fmt.Errorf("no healthy adapters")}
	}

	r.mu.RLock()
	failover := r.failover
	r.mu.RUnlock()
	if !failover {
		candidates = candidates[:1]
	}

	var lastErr error
	for i, a := range candidates {
		cb := r.breaker(a.Name())
		result, err := cb.Execute(func() (any, error) {
			return op(ctx, a)
		})
		if err == nil {
			r.metrics.RecordProviderRequest(a.Name(), string(capability), repository.OutcomeOK)
			return result, nil
		}

		if IsRateLimit(err) {
			r.metrics.RecordProviderRequest(a.Name(), string(capability), repository.OutcomeRateLimited)
			return nil, err
		}

		r.metrics.RecordProviderRequest(a.Name(), string(capability), repository.OutcomeError)
		r.metrics.RecordBreakerState(a.Name(), cb.State() == gobreaker.StateOpen)
		lastErr = err
		r.logger.Warn("data source call failed",
			applogger.String("source", a.Name()),
			applogger.String("capability", string(capability)),
			applogger.Error(err))
		if i < len(candidates)-1 {
			r.metrics.RecordFailover(string(capability), a.Name())
		}
	}

	return nil, &UnavailableError{
		Source: string(capability),
		Err:    fmt.Errorf("no healthy adapters: %w", lastErr),
	}
}

// BreakerOpen reports whether the named adapter's breaker is open.
func (r *Registry) BreakerOpen(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakerOpenLocked(name)
}

// ResetBreaker manually closes the named adapter's breaker by swapping in
// a fresh one. Returns false if no such adapter is registered.
func (r *Registry) ResetBreaker(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; !exists {
		return false
	}
	r.breakers[name] = r.newBreaker(name)
	r.metrics.RecordBreakerState(name, false)
	r.logger.Info("circuit breaker reset", applogger.String("source", name))
	return true
}

// EnableFailover turns the global failover flag on.
func (r *Registry) EnableFailover() { r.setFailover(true) }

// DisableFailover turns the global failover flag off (primary-only mode).
func (r *Registry) DisableFailover() { r.setFailover(false) }

// FailoverEnabled reports the global failover flag.
func (r *Registry) FailoverEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failover
}

// RefreshHealth probes one adapter now and caches the result.
func (r *Registry) RefreshHealth(ctx context.Context, name string) (models.HealthCheck, error) {
	a, err := r.Get(name)
	if err != nil {
		return models.HealthCheck{}, err
	}

	check := a.HealthCheck(ctx)
	r.SetHealth(check)
	return check, nil
}

// SetHealth stores a health probe result for an adapter.
func (r *Registry) SetHealth(check models.HealthCheck) {
	r.mu.Lock()
	r.health[check.Source] = check
	r.mu.Unlock()
	r.metrics.RecordAdapterHealth(check.Source, check.State == models.HealthHealthy)
}

// CachedHealth returns the cached probe for an adapter, if any.
func (r *Registry) CachedHealth(name string) (models.HealthCheck, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.health[name]
	return h, ok
}

// HealthSnapshot returns the cached probes for every registered adapter.
// Adapters never probed report the unknown state.
func (r *Registry) HealthSnapshot() []models.HealthCheck {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.HealthCheck, 0, len(r.adapters))
	for name := range r.adapters {
		if h, ok := r.health[name]; ok {
			out = append(out, h)
			continue
		}
		out = append(out, models.HealthCheck{Source: name, State: models.HealthUnknown})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// StartHealthMonitor starts the background probe loop. Calling it again
// while running is a no-op.
func (r *Registry) StartHealthMonitor(interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}

	r.monitorMu.Lock()
	defer r.monitorMu.Unlock()

	if r.monitorCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.monitorCancel = cancel
	r.monitorDone = make(chan struct{})

	go func() {
		defer close(r.monitorDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.probeAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.probeAll(ctx)
			}
		}
	}()

	r.logger.Info("health monitor started", applogger.Duration("interval", interval))
}

// StopHealthMonitor stops the probe loop. An in-flight probe round
// finishes; only the next tick is prevented. Idempotent.
func (r *Registry) StopHealthMonitor() {
	r.monitorMu.Lock()
	defer r.monitorMu.Unlock()

	if r.monitorCancel == nil {
		return
	}
	r.monitorCancel()
	<-r.monitorDone
	r.monitorCancel = nil
	r.monitorDone = nil
	r.logger.Info("health monitor stopped")
}

func (r *Registry) probeAll(ctx context.Context) {
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	r.mu.RUnlock()

	for _, a := range adapters {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		check := a.HealthCheck(probeCtx)
		cancel()
		r.SetHealth(check)
	}
}

func (r *Registry) breaker(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

func (r *Registry) breakerOpenLocked(name string) bool {
	cb, exists := r.breakers[name]
	if !exists {
		return false
	}
	return cb.State() == gobreaker.StateOpen
}

func (r *Registry) setFailover(enabled bool) {
	r.mu.Lock()
	r.failover = enabled
	r.mu.Unlock()
	r.logger.Info("failover flag changed", applogger.Bool("enabled", enabled))
}

func (r *Registry) newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	threshold := r.breakerThreshold
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     r.breakerReset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Rate limiting is an expected transient condition, never a
		// health signal against the adapter.
		IsSuccessful: func(err error) bool {
			return err == nil || IsRateLimit(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.metrics.RecordBreakerState(name, to == gobreaker.StateOpen)
			r.logger.Warn("circuit breaker state change",
				applogger.String("source", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()))
		},
	})
}
