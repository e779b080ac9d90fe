package datasource

import (
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

func (w *window) tick(now time.Time, size time.Duration) {
	aligned := now.Truncate(size)
	if !aligned.Equal(w.start) {
		w.start = aligned
		w.count = 0
	}
}

// limiter tracks per-minute/hour/day request budgets locally and rejects
// pre-flight before a call would exceed any configured ceiling. A ceiling
// of <=0 disables that window. The clock is injectable for tests.
type limiter struct {
	mu     sync.Mutex
	now    func() time.Time
	source string

	perMinute int
	perHour   int
	perDay    int

	minute window
	hour   window
	day    window
}

func newLimiter(source string, perMinute, perHour, perDay int, now func() time.Time) *limiter {
	if now == nil {
		now = time.Now
	}
	return &limiter{
		now:       now,
		source:    source,
		perMinute: perMinute,
		perHour:   perHour,
		perDay:    perDay,
	}
}

// allow consumes one request slot or returns a RateLimitError with the
// time until the tightest exhausted window resets.
func (l *limiter) allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.minute.tick(now, time.Minute)
	l.hour.tick(now, time.Hour)
	l.day.tick(now, 24*time.Hour)

	if l.perMinute > 0 && l.minute.count >= l.perMinute {
		return &RateLimitError{Source: l.source, RetryAfter: l.minute.start.Add(time.Minute).Sub(now)}
	}
	if l.perHour > 0 && l.hour.count >= l.perHour {
		return &RateLimitError{Source: l.source, RetryAfter: l.hour.start.Add(time.Hour).Sub(now)}
	}
	if l.perDay > 0 && l.day.count >= l.perDay {
		return &RateLimitError{Source: l.source, RetryAfter: l.day.start.Add(24 * time.Hour).Sub(now)}
	}

	l.minute.count++
	l.hour.count++
	l.day.count++
	return nil
}

func (l *limiter) info() RateLimitInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.minute.tick(now, time.Minute)
	l.hour.tick(now, time.Hour)
	l.day.tick(now, 24*time.Hour)

	info := RateLimitInfo{
		PerMinute:  l.perMinute,
		PerHour:    l.perHour,
		PerDay:     l.perDay,
		UsedMinute: l.minute.count,
		UsedHour:   l.hour.count,
		UsedDay:    l.day.count,
	}
	if l.perMinute > 0 && l.minute.count >= l.perMinute {
		info.RetryAfterSec = int(l.minute.start.Add(time.Minute).Sub(now).Seconds()) + 1
	}
	return info
}
