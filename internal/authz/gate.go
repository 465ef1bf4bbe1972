// Package authz decides whether a personality may respond to a message.
package authz

import (
	"context"
	"sync"

	"github.com/kindredbots/kindred/internal/bus"
	"github.com/kindredbots/kindred/internal/personality"
)

// Decision is the outcome of an access check. Denials are expected
// conditions, not errors; UserFacingMessage is surfaced verbatim when set.
type Decision struct {
	Allowed           bool
	Reason            string
	UserFacingMessage string
}

// Gate is the authorization collaborator. An error return means the check
// itself failed; callers must fail closed.
type Gate interface {
	CheckAccess(ctx context.Context, personalityID string, msg bus.InboundMessage) (Decision, error)
}

// Blocklist answers whether a user is banned outright, before any request
// slot is claimed.
type Blocklist interface {
	Blocked(userID string) bool
}

// ConfigGate is the config-backed Gate: a global user blocklist plus a
// channel allowlist for NSFW-flagged personalities.
type ConfigGate struct {
	mu           sync.RWMutex
	blocked      map[string]bool
	nsfwChannels map[string]bool
	registry     *personality.Registry
}

// NewConfigGate builds a gate from blocked user ids and NSFW-allowed
// channel ids.
func NewConfigGate(blockedUsers, nsfwChannels []string, registry *personality.Registry) *ConfigGate {
	g := &ConfigGate{
		blocked:      make(map[string]bool, len(blockedUsers)),
		nsfwChannels: make(map[string]bool, len(nsfwChannels)),
		registry:     registry,
	}
	for _, id := range blockedUsers {
		g.blocked[id] = true
	}
	for _, id := range nsfwChannels {
		g.nsfwChannels[id] = true
	}
	return g
}

// Blocked implements Blocklist.
func (g *ConfigGate) Blocked(userID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.blocked[userID]
}

// Block adds a user to the blocklist.
func (g *ConfigGate) Block(userID string) {
	g.mu.Lock()
	g.blocked[userID] = true
	g.mu.Unlock()
}

// Unblock removes a user from the blocklist.
func (g *ConfigGate) Unblock(userID string) {
	g.mu.Lock()
	delete(g.blocked, userID)
	g.mu.Unlock()
}

// CheckAccess implements Gate.
func (g *ConfigGate) CheckAccess(_ context.Context, personalityID string, msg bus.InboundMessage) (Decision, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.blocked[msg.AuthorID] {
		return Decision{
			Allowed: false,
			Reason:  "user blocked",
		}, nil
	}

	if p, ok := g.registry.Get(personalityID); ok && p.NSFW {
		if msg.IsDM() {
			return Decision{Allowed: true}, nil
		}
		if !g.nsfwChannels[msg.ChannelID] {
			return Decision{
				Allowed:           false,
				Reason:            "nsfw personality outside allowed channels",
				UserFacingMessage: "This personality can only be used in age-restricted channels.",
			}, nil
		}
	}

	return Decision{Allowed: true}, nil
}
