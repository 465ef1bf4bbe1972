package delivery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a minimum spacing between any two sends into the same
// channel, regardless of which personality or request triggered them. Safe
// for concurrent use.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

// NewThrottle creates a per-channel throttle with the given minimum
// inter-send interval. A zero interval disables pacing.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the channel's next send slot, or until ctx is done.
// The wait works out to max(0, interval − elapsed since the last send).
func (t *Throttle) Wait(ctx context.Context, channelID string) error {
	if t.interval <= 0 {
		return nil
	}
	return t.limiter(channelID).Wait(ctx)
}

// Allow reports whether a send may proceed immediately, consuming the slot
// if so.
func (t *Throttle) Allow(channelID string) bool {
	if t.interval <= 0 {
		return true
	}
	return t.limiter(channelID).Allow()
}

func (t *Throttle) limiter(channelID string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[channelID]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[channelID] = l
	}
	return l
}
