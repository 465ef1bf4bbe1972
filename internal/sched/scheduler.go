// Package sched provides an injectable timer abstraction so state stores and
// the typing indicator can be driven by a manual clock in tests.
package sched

import (
	"sync"
	"time"
)

// Handle cancels a scheduled callback. Stop is idempotent.
type Handle interface {
	Stop()
}

// Scheduler schedules one-shot callbacks.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Handle
	Now() time.Time
}

// Timer is the production scheduler backed by time.AfterFunc.
type Timer struct{}

// NewTimer returns the real-clock scheduler.
func NewTimer() *Timer { return &Timer{} }

func (*Timer) Schedule(d time.Duration, fn func()) Handle {
	return &timerHandle{t: time.AfterFunc(d, fn)}
}

func (*Timer) Now() time.Time { return time.Now() }

type timerHandle struct {
	t *time.Timer
}

func (h *timerHandle) Stop() { h.t.Stop() }

// Manual is a deterministic scheduler for tests. Time only moves when
// Advance is called; due callbacks run synchronously on the advancing
// goroutine, in scheduling order.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	pending map[int]*manualEntry
}

type manualEntry struct {
	due time.Time
	seq int
	fn  func()
}

// NewManual returns a manual scheduler starting at an arbitrary fixed time.
func NewManual() *Manual {
	return &Manual{
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		pending: make(map[int]*manualEntry),
	}
}

func (m *Manual) Schedule(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.pending[id] = &manualEntry{due: m.now.Add(d), seq: id, fn: fn}
	return &manualHandle{m: m, id: id}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward and fires every callback that became due,
// in scheduling order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	var due []*manualEntry
	for id, e := range m.pending {
		if !e.due.After(m.now) {
			due = append(due, e)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for i := 0; i < len(due); i++ {
		min := i
		for j := i + 1; j < len(due); j++ {
			if due[j].seq < due[min].seq {
				min = j
			}
		}
		due[i], due[min] = due[min], due[i]
	}
	for _, e := range due {
		e.fn()
	}
}

// PendingCount returns the number of callbacks not yet fired or stopped.
func (m *Manual) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

type manualHandle struct {
	m  *Manual
	id int
}

func (h *manualHandle) Stop() {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	delete(h.m.pending, h.id)
}
