package datasource

import (
	"errors"
	"testing"
	"time"
)

func TestLimiterMinuteWindow(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	l := newLimiter("test", 3, 0, 0, clock)

	for i := 0; i < 3; i++ {
		if err := l.allow(); err != nil {
			t.Fatalf("request %d should be allowed: %v", i, err)
		}
	}

	err := l.allow()
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.RetryAfter <= 0 || rle.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %s", rle.RetryAfter)
	}

	// Next minute resets the window.
	now = now.Add(time.Minute)
	if err := l.allow(); err != nil {
		t.Fatalf("request after window reset should be allowed: %v", err)
	}
}

func TestLimiterDailyCeiling(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	l := newLimiter("test", 0, 0, 2, clock)

	if err := l.allow(); err != nil {
		t.Fatalf("first: %v", err)
	}
	now = now.Add(3 * time.Hour)
	if err := l.allow(); err != nil {
		t.Fatalf("second: %v", err)
	}
	now = now.Add(3 * time.Hour)
	if err := l.allow(); !IsRateLimit(err) {
		t.Fatalf("expected daily ceiling, got %v", err)
	}
}

func TestLimiterDisabledWindows(t *testing.T) {
	l := newLimiter("test", 0, 0, 0, nil)
	for i := 0; i < 100; i++ {
		if err := l.allow(); err != nil {
			t.Fatalf("unlimited limiter rejected request %d: %v", i, err)
		}
	}
}

func TestLimiterInfo(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 30, 0, time.UTC)
	clock := func() time.Time { return now }
	l := newLimiter("test", 2, 10, 100, clock)

	if err := l.allow(); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if err := l.allow(); err != nil {
		t.Fatalf("allow: %v", err)
	}

	info := l.info()
	if info.UsedMinute != 2 || info.UsedHour != 2 || info.UsedDay != 2 {
		t.Fatalf("unexpected usage: %+v", info)
	}
	if info.RetryAfterSec <= 0 {
		t.Fatalf("expected positive retry-after with exhausted minute window, got %d", info.RetryAfterSec)
	}
}
