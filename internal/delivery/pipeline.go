// Package delivery posts personality-voiced messages through per-channel
// webhooks, with chunking, per-channel throttling, duplicate suppression,
// and a thread fallback cascade.
package delivery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// maxMessageLen is the platform's per-message content limit.
	maxMessageLen = 2000

	// interChunkDelay spaces successive chunks of one response, both for
	// ordering and rate-limit headroom.
	interChunkDelay = 750 * time.Millisecond
)

// Params is one physical webhook send.
type Params struct {
	Content   string
	Username  string
	AvatarURL string
	Embeds    []Embed
	Files     []File
}

// Embed is a rich-content attachment carried on the final chunk.
type Embed struct {
	Title       string
	Description string
	URL         string
	ImageURL    string
	Color       int
}

// File is a file attachment carried on the final chunk.
type File struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// Handle is a cached webhook delivery handle scoped to one parent channel.
type Handle interface {
	// Send posts at channel level.
	Send(ctx context.Context, p Params) (string, error)
	// SendToThread posts with an explicit thread-target parameter.
	SendToThread(ctx context.Context, threadID string, p Params) (string, error)
	// ThreadSend posts through the handle's native per-thread execution
	// path, distinct from the thread-target parameter above.
	ThreadSend(ctx context.Context, threadID string, p Params) (string, error)
}

// Platform supplies webhook handles and the plain channel-send primitive
// used as the last-resort fallback.
type Platform interface {
	Webhook(ctx context.Context, channelID string) (Handle, error)
	ChannelSend(ctx context.Context, channelID, content string) (string, error)
}

// Request is one logical response to deliver, possibly spanning chunks.
type Request struct {
	// ChannelID is the parent channel owning the webhook.
	ChannelID string
	// ThreadID targets a thread under ChannelID; empty for channel posts.
	ThreadID string

	Content   string
	Username  string
	AvatarURL string
	Embeds    []Embed
	Files     []File
}

// Result is the uniform outcome of a delivery, synthetic or real.
type Result struct {
	MessageIDs []string
	// Fallback marks that the emergency plain-text path was used for at
	// least one chunk (no delivery-identity spoofing).
	Fallback bool
	// Virtual marks a synthetic result that performed no network send.
	Virtual bool
	// Duplicate marks a send short-circuited by duplicate suppression.
	Duplicate bool
}

// Pipeline owns the webhook handle cache and per-channel pacing state.
type Pipeline struct {
	platform Platform

	mu      sync.Mutex
	handles map[string]Handle
	flight  singleflight.Group

	throttle *Throttle
	recent   *recentSends

	// pause is the inter-chunk wait; replaced in tests.
	pause func(ctx context.Context, d time.Duration)
}

// NewPipeline creates a pipeline over the given platform.
func NewPipeline(platform Platform, minSendInterval time.Duration) *Pipeline {
	return &Pipeline{
		platform: platform,
		handles:  make(map[string]Handle),
		throttle: NewThrottle(minSendInterval),
		recent:   newRecentSends(),
		pause: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
}

// SetPause overrides the inter-chunk wait. Test hook.
func (p *Pipeline) SetPause(fn func(ctx context.Context, d time.Duration)) { p.pause = fn }

// handle returns the cached webhook handle for a parent channel, creating it
// on first use. Concurrent cold-cache lookups are deduped so only one
// creation call reaches the platform.
func (p *Pipeline) handle(ctx context.Context, channelID string) (Handle, error) {
	p.mu.Lock()
	if h, ok := p.handles[channelID]; ok {
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	v, err, _ := p.flight.Do(channelID, func() (any, error) {
		h, err := p.platform.Webhook(ctx, channelID)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.handles[channelID] = h
		p.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("create webhook handle for %s: %w", channelID, err)
	}
	return v.(Handle), nil
}

// InvalidateHandle drops a cached handle so the next send recreates it.
func (p *Pipeline) InvalidateHandle(channelID string) {
	p.mu.Lock()
	delete(p.handles, channelID)
	p.mu.Unlock()
}

// Send delivers a response. Content over the platform limit is split into
// ordered chunks; embeds and files ride only on the final chunk. Only a
// first-chunk failure that exhausts the whole cascade is returned as an
// error; later chunk failures are logged and skipped so the remainder of the
// response still attempts delivery.
func (p *Pipeline) Send(ctx context.Context, req Request) (Result, error) {
	if dup := p.recent.isDuplicate(req.ChannelID, req.ThreadID, req.Username, req.Content); dup {
		slog.Debug("delivery suppressed as duplicate",
			"channel_id", req.ChannelID,
			"thread_id", req.ThreadID,
			"username", req.Username,
		)
		return Result{Virtual: true, Duplicate: true}, nil
	}

	h, err := p.handle(ctx, req.ChannelID)
	if err != nil {
		return Result{}, err
	}

	chunks := splitContent(req.Content, maxMessageLen)
	cascade := p.buildCascade(h, req)

	var result Result
	for i, chunk := range chunks {
		if i > 0 {
			p.pause(ctx, interChunkDelay)
		}
		if err := p.throttle.Wait(ctx, req.ChannelID); err != nil {
			return result, err
		}

		params := Params{
			Content:   chunk,
			Username:  req.Username,
			AvatarURL: req.AvatarURL,
		}
		if i == len(chunks)-1 {
			params.Embeds = req.Embeds
			params.Files = req.Files
		}

		msgID, usedFallback, err := runCascade(ctx, cascade, params)
		if err != nil {
			if i == 0 {
				return result, fmt.Errorf("deliver first chunk to %s: %w", req.ChannelID, err)
			}
			slog.Warn("chunk delivery exhausted all strategies, skipping",
				"channel_id", req.ChannelID,
				"thread_id", req.ThreadID,
				"chunk", i,
				"error", err,
			)
			continue
		}
		if i == 0 {
			p.recent.record(req.ChannelID, req.ThreadID, req.Username, req.Content)
		}
		result.MessageIDs = append(result.MessageIDs, msgID)
		result.Fallback = result.Fallback || usedFallback
	}
	return result, nil
}
