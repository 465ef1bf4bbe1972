package orchestrator

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// typingKeepalive refreshes the platform's typing state before its ~10s
	// expiry.
	typingKeepalive = 8 * time.Second

	// typingTTL auto-stops a leaked indicator.
	typingTTL = 60 * time.Second
)

// indicator keeps a channel's "working" state alive until stopped. Stop is
// idempotent and safe from any goroutine; every orchestrator exit path
// calls it.
type indicator struct {
	stop chan struct{}
	once sync.Once
}

// startIndicator fires trigger immediately and then on a keepalive cadence
// until Stop or the TTL. Trigger failures are logged and otherwise ignored:
// the indicator is cosmetic and must never abort the response pipeline.
func startIndicator(channelID string, trigger func() error) *indicator {
	ind := &indicator{stop: make(chan struct{})}

	if err := trigger(); err != nil {
		slog.Debug("typing indicator trigger failed", "channel_id", channelID, "error", err)
	}

	go func() {
		ticker := time.NewTicker(typingKeepalive)
		defer ticker.Stop()
		deadline := time.After(typingTTL)
		for {
			select {
			case <-ind.stop:
				return
			case <-deadline:
				return
			case <-ticker.C:
				if err := trigger(); err != nil {
					slog.Debug("typing indicator trigger failed", "channel_id", channelID, "error", err)
				}
			}
		}
	}()
	return ind
}

func (i *indicator) Stop() {
	i.once.Do(func() { close(i.stop) })
}
