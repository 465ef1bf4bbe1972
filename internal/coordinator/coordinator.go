// Package coordinator deduplicates concurrent generation requests and
// suppresses follow-up responses during post-error blackout windows.
package coordinator

import (
	"fmt"
	"sync"
	"time"
)

const (
	// staleAfter bounds how long an unreleased entry can linger. Release on
	// every exit path is the primary liveness mechanism; this sweep only
	// caps memory when a caller leaks an entry.
	staleAfter = 5 * time.Minute
)

// Key identifies one in-flight request slot.
type Key string

// BuildKey composes the stable request key for a (user, channel,
// personality) triple.
func BuildKey(userID, channelID, personalityID string) Key {
	return Key(fmt.Sprintf("%s:%s:%s", userID, channelID, personalityID))
}

type pendingEntry struct {
	createdAt time.Time
}

type blackoutEntry struct {
	expiresAt time.Time
}

// Coordinator tracks in-flight request slots and blackout windows. Safe for
// concurrent use.
type Coordinator struct {
	mu       sync.Mutex
	pending  map[Key]pendingEntry
	blackout map[Key]blackoutEntry
	now      func() time.Time
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{
		pending:  make(map[Key]pendingEntry),
		blackout: make(map[Key]blackoutEntry),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// Track claims the request slot for the triple. It returns ok=false when a
// matching request is already live, in which case the caller must do nothing
// further.
func (c *Coordinator) Track(userID, channelID, personalityID string) (Key, bool) {
	return c.TrackKey(BuildKey(userID, channelID, personalityID))
}

// TrackKey claims an arbitrary precomputed key (e.g. a content fingerprint).
func (c *Coordinator) TrackKey(key Key) (Key, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)

	if _, live := c.pending[key]; live {
		return "", false
	}
	c.pending[key] = pendingEntry{createdAt: now}
	return key, true
}

// Release frees a claimed slot. Idempotent; releasing an unknown or already
// released key is a no-op so every exit path can call it unconditionally.
func (c *Coordinator) Release(key Key) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, key)
}

// InFlight reports whether the triple currently holds a slot.
func (c *Coordinator) InFlight(userID, channelID, personalityID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, live := c.pending[BuildKey(userID, channelID, personalityID)]
	return live
}

// EnterBlackout suppresses any further response to the triple for d. Used
// after an error reply so a duplicate trigger resolving elsewhere does not
// produce a second response.
func (c *Coordinator) EnterBlackout(personalityID, userID, channelID string, d time.Duration) {
	key := BuildKey(userID, channelID, personalityID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blackout[key] = blackoutEntry{expiresAt: c.now().Add(d)}
}

// InBlackout reports whether the triple is inside a live blackout window.
// Expired windows are removed on the way out.
func (c *Coordinator) InBlackout(personalityID, userID, channelID string) bool {
	key := BuildKey(userID, channelID, personalityID)
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.blackout[key]
	if !ok {
		return false
	}
	if c.now().After(e.expiresAt) {
		delete(c.blackout, key)
		return false
	}
	return true
}

// sweepLocked purges entries past the stale ceiling. Caller holds mu.
func (c *Coordinator) sweepLocked(now time.Time) {
	for k, e := range c.pending {
		if now.Sub(e.createdAt) >= staleAfter {
			delete(c.pending, k)
		}
	}
	for k, e := range c.blackout {
		if now.After(e.expiresAt) {
			delete(c.blackout, k)
		}
	}
}
