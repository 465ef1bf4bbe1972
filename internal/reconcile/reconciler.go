// Package reconcile re-attributes messages that a proxy system deletes and
// reposts under a webhook identity back to their real human author.
//
// There is no correlation id linking the original message to its repost, so
// matching is a best-effort content heuristic: the original content must
// contain the reposted content (proxy tags are typically stripped, never
// added) and the repost must retain more than half of the original's length.
package reconcile

import (
	"sync"
	"time"
)

// entryTTL is the race window inside which a delete→repost pair is expected
// to land.
const entryTTL = 5 * time.Second

// Original is a stored plain user message that may later be deleted and
// reposted by a proxy.
type Original struct {
	UserID    string
	ChannelID string
	Content   string
	Timestamp time.Time
}

// ReplyContext preserves a reply relationship that the proxy repost loses.
type ReplyContext struct {
	UserID              string
	Content             string
	PersonalityID       string
	ReferencedMessageID string
	Timestamp           time.Time
}

// Reconciler correlates deleted originals and pending reply contexts with
// later proxy reposts. Safe for concurrent use.
type Reconciler struct {
	mu       sync.Mutex
	pending  map[string]Original       // messageID → original
	deleted  map[string][]Original     // channelID → candidates, oldest first
	replies  map[string][]ReplyContext // channelID → contexts, oldest first
	now      func() time.Time
}

// New creates an empty reconciler.
func New() *Reconciler {
	return &Reconciler{
		pending: make(map[string]Original),
		deleted: make(map[string][]Original),
		replies: make(map[string][]ReplyContext),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (r *Reconciler) SetClock(now func() time.Time) { r.now = now }

// ObserveMessage stores a non-bot, non-proxied inbound message so that a
// later delete event can promote it to a repost candidate.
func (r *Reconciler) ObserveMessage(messageID, userID, channelID, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[messageID] = Original{
		UserID:    userID,
		ChannelID: channelID,
		Content:   content,
		Timestamp: r.now(),
	}
}

// ObserveDelete promotes a stored message into the channel's deleted
// candidate list. Deletes of unobserved messages are ignored.
func (r *Reconciler) ObserveDelete(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	orig, ok := r.pending[messageID]
	if !ok {
		return
	}
	delete(r.pending, messageID)
	if r.expired(orig.Timestamp) {
		return
	}
	r.deleted[orig.ChannelID] = append(r.deleted[orig.ChannelID], orig)
}

// ObserveReply records a user reply to a personality message so the reply
// relationship survives a proxy repost that drops the reference metadata.
func (r *Reconciler) ObserveReply(userID, channelID, content, personalityID, referencedMessageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[channelID] = append(r.replies[channelID], ReplyContext{
		UserID:              userID,
		Content:             content,
		PersonalityID:       personalityID,
		ReferencedMessageID: referencedMessageID,
		Timestamp:           r.now(),
	})
}

// ResolveAuthor matches a newly arrived proxied message against the
// channel's deleted candidates, most recent first. The first candidate whose
// original content contains the proxied content (with the length-ratio
// guard) wins and is consumed. Returns ok=false on a miss, which is not an
// error: the caller falls back to ordinary proxied handling.
func (r *Reconciler) ResolveAuthor(channelID, proxiedContent string) (Original, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.sweepOriginalsLocked(channelID)
	for i := len(live) - 1; i >= 0; i-- {
		if contentMatches(live[i].Content, proxiedContent) {
			matched := live[i]
			r.deleted[channelID] = append(live[:i:i], live[i+1:]...)
			return matched, true
		}
	}
	return Original{}, false
}

// ResolveReply matches a proxied message against pending reply contexts for
// the channel using the same containment rule, restoring the reply target.
func (r *Reconciler) ResolveReply(channelID, proxiedContent string) (ReplyContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.sweepRepliesLocked(channelID)
	for i := len(live) - 1; i >= 0; i-- {
		if contentMatches(live[i].Content, proxiedContent) {
			matched := live[i]
			r.replies[channelID] = append(live[:i:i], live[i+1:]...)
			return matched, true
		}
	}
	return ReplyContext{}, false
}

// Sweep drops every expired entry across all tables. Periodic backstop;
// correctness relies on the lazy sweeps above.
func (r *Reconciler) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, orig := range r.pending {
		if r.expired(orig.Timestamp) {
			delete(r.pending, id)
		}
	}
	for ch := range r.deleted {
		if live := r.sweepOriginalsLocked(ch); len(live) == 0 {
			delete(r.deleted, ch)
		}
	}
	for ch := range r.replies {
		if live := r.sweepRepliesLocked(ch); len(live) == 0 {
			delete(r.replies, ch)
		}
	}
}

func (r *Reconciler) expired(ts time.Time) bool {
	return r.now().Sub(ts) > entryTTL
}

func (r *Reconciler) sweepOriginalsLocked(channelID string) []Original {
	in := r.deleted[channelID]
	live := in[:0]
	for _, o := range in {
		if !r.expired(o.Timestamp) {
			live = append(live, o)
		}
	}
	r.deleted[channelID] = live
	return live
}

func (r *Reconciler) sweepRepliesLocked(channelID string) []ReplyContext {
	in := r.replies[channelID]
	live := in[:0]
	for _, c := range in {
		if !r.expired(c.Timestamp) {
			live = append(live, c)
		}
	}
	r.replies[channelID] = live
	return live
}
