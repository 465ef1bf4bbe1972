package delivery

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// duplicateWindow is how long an identical (target, username, content)
// send is considered a duplicate of one already delivered.
const duplicateWindow = 5 * time.Second

// recentSends remembers recent successful sends so an identical request in
// the window short-circuits before any network call.
type recentSends struct {
	mu      sync.Mutex
	entries map[uint64]time.Time
	now     func() time.Time
}

func newRecentSends() *recentSends {
	return &recentSends{
		entries: make(map[uint64]time.Time),
		now:     time.Now,
	}
}

func sendKey(channelID, threadID, username, content string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s", channelID, threadID, username, content)
	return h.Sum64()
}

func (r *recentSends) isDuplicate(channelID, threadID, username, content string) bool {
	key := sendKey(channelID, threadID, username, content)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	// Lazy expiry keeps the table bounded without a background task.
	for k, ts := range r.entries {
		if now.Sub(ts) > duplicateWindow {
			delete(r.entries, k)
		}
	}

	ts, ok := r.entries[key]
	return ok && now.Sub(ts) <= duplicateWindow
}

func (r *recentSends) record(channelID, threadID, username, content string) {
	key := sendKey(channelID, threadID, username, content)
	r.mu.Lock()
	r.entries[key] = r.now()
	r.mu.Unlock()
}
