package datasource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	apphttp "Kessan/pkg/http"
)

// baseAdapter carries the identity, enable flag, rate limiter and cost
// model shared by every concrete adapter.
type baseAdapter struct {
	name       string
	priority   int
	capability Capability
	enabled    atomic.Bool
	limiter    *limiter
	cost       CostInfo
}

func newBaseAdapter(name string, priority int, capability Capability, lim *limiter, cost CostInfo) baseAdapter {
	b := baseAdapter{
		name:       name,
		priority:   priority,
		capability: capability,
		limiter:    lim,
		cost:       cost,
	}
	b.enabled.Store(true)
	return b
}

func (b *baseAdapter) Name() string             { return b.name }
func (b *baseAdapter) Priority() int            { return b.priority }
func (b *baseAdapter) Capability() Capability   { return b.capability }
func (b *baseAdapter) Enabled() bool            { return b.enabled.Load() }
func (b *baseAdapter) SetEnabled(enabled bool)  { b.enabled.Store(enabled) }
func (b *baseAdapter) RateLimitInfo() RateLimitInfo { return b.limiter.info() }
func (b *baseAdapter) CostInfo() CostInfo       { return b.cost }

// translateError maps transport errors into the package taxonomy:
// HTTP 429 becomes RateLimitError, 5xx and network failures become
// UnavailableError, other statuses become InvalidDataError.
func translateError(source string, err error) error {
	if err == nil {
		return nil
	}
	var se *apphttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 429:
			return &RateLimitError{Source: source, RetryAfter: 60 * time.Second}
		case se.StatusCode >= 500:
			return &UnavailableError{Source: source, Err: err}
		default:
			return &InvalidDataError{Source: source, Reason: se.Error()}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &UnavailableError{Source: source, Err: err}
	}
	return &UnavailableError{Source: source, Err: err}
}
