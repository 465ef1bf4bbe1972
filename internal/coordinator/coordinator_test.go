package coordinator

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTrackSecondCallRejected(t *testing.T) {
	c := New()

	key, ok := c.Track("u1", "ch1", "p1")
	if !ok {
		t.Fatal("first Track should claim the slot")
	}
	if _, ok := c.Track("u1", "ch1", "p1"); ok {
		t.Fatal("second Track for the same triple should be rejected")
	}

	c.Release(key)
	if _, ok := c.Track("u1", "ch1", "p1"); !ok {
		t.Fatal("Track after Release should claim the slot again")
	}
}

func TestTrackConcurrentSingleWinner(t *testing.T) {
	c := New()

	const n = 50
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := c.Track("u1", "ch1", "p1"); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly 1 winner out of %d concurrent Track calls, got %d", n, got)
	}
}

func TestTrackDistinctTriplesIndependent(t *testing.T) {
	c := New()

	tests := []struct {
		user, channel, personality string
	}{
		{"u1", "ch1", "p1"},
		{"u2", "ch1", "p1"},
		{"u1", "ch2", "p1"},
		{"u1", "ch1", "p2"},
	}
	for _, tt := range tests {
		if _, ok := c.Track(tt.user, tt.channel, tt.personality); !ok {
			t.Errorf("Track(%s,%s,%s) should be independent of other triples", tt.user, tt.channel, tt.personality)
		}
	}
}

func TestReleaseIdempotent(t *testing.T) {
	c := New()

	key, _ := c.Track("u1", "ch1", "p1")
	c.Release(key)
	c.Release(key)
	c.Release("")
	c.Release(Key("never-tracked"))

	if _, ok := c.Track("u1", "ch1", "p1"); !ok {
		t.Fatal("slot should be free after release")
	}
}

func TestStaleEntrySweep(t *testing.T) {
	c := New()
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	if _, ok := c.Track("u1", "ch1", "p1"); !ok {
		t.Fatal("first Track should succeed")
	}

	// Still within the ceiling: entry is live.
	now = now.Add(4 * time.Minute)
	if _, ok := c.Track("u1", "ch1", "p1"); ok {
		t.Fatal("entry should still block within the stale ceiling")
	}

	// Past the ceiling: entry is purged on access.
	now = now.Add(2 * time.Minute)
	if _, ok := c.Track("u1", "ch1", "p1"); !ok {
		t.Fatal("stale entry should be purged and the slot reclaimable")
	}
}

func TestBlackoutWindow(t *testing.T) {
	c := New()
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	if c.InBlackout("p1", "u1", "ch1") {
		t.Fatal("no blackout should be active initially")
	}

	c.EnterBlackout("p1", "u1", "ch1", 30*time.Second)
	if !c.InBlackout("p1", "u1", "ch1") {
		t.Fatal("blackout should be active")
	}
	if c.InBlackout("p2", "u1", "ch1") {
		t.Fatal("blackout should be scoped to the triple")
	}

	now = now.Add(31 * time.Second)
	if c.InBlackout("p1", "u1", "ch1") {
		t.Fatal("blackout should expire")
	}
}

func TestFingerprintStableAndDistinct(t *testing.T) {
	a := Fingerprint("p1", "u1", "ch1", "m1", "hello", nil)
	b := Fingerprint("p1", "u1", "ch1", "m1", "hello", nil)
	if a != b {
		t.Fatalf("same inputs should fingerprint identically: %q vs %q", a, b)
	}

	if Fingerprint("p1", "u1", "ch1", "m1", "hello", nil) == Fingerprint("p1", "u1", "ch1", "m1", "goodbye", nil) {
		t.Fatal("different content should fingerprint differently")
	}
	if Fingerprint("p1", "u1", "ch1", "m1", "hello", []string{"http://a/img.png"}) == Fingerprint("p1", "u1", "ch1", "m1", "hello", nil) {
		t.Fatal("media URLs should participate in the fingerprint")
	}
}

func TestFingerprintDedupesCrossPathTriggers(t *testing.T) {
	c := New()

	// A mention trigger and a reference trigger for the same message arrive
	// as distinct events but share one fingerprint.
	fp := Fingerprint("p1", "u1", "ch1", "m1", "hey there", nil)
	if _, ok := c.TrackKey(fp); !ok {
		t.Fatal("first trigger should claim the fingerprint slot")
	}
	if _, ok := c.TrackKey(Fingerprint("p1", "u1", "ch1", "m1", "hey there", nil)); ok {
		t.Fatal("second trigger with equal payload should be deduped")
	}
}
