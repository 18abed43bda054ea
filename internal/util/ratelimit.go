package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces calls so that at most perMinute of them start in any
// minute. A zero or negative rate disables limiting.
type RateLimiter struct {
	interval time.Duration
	next     time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a RateLimiter allowing perMinute calls per minute.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{}
	if perMinute > 0 {
		rl.interval = time.Minute / time.Duration(perMinute)
	}
	return rl
}

// Wait blocks until the caller may proceed or ctx is cancelled. The first
// call never blocks.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil || rl.interval <= 0 {
		return nil
	}

	rl.mu.Lock()
	now := time.Now()
	slot := rl.next
	if slot.Before(now) {
		slot = now
	}
	rl.next = slot.Add(rl.interval)
	rl.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
