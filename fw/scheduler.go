// Package fw composes the tables into the running forwarding daemon:
// Scheduler, StrategyEngine, ForwardingEngine, and the single-goroutine
// IoLoop that drives them (spec.md §2, §4.7-§4.9).
package fw

import (
	"sync"
	"time"

	"github.com/ccnd-project/ccnd/face"
	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/ccnd-project/ccnd/internal/pqueue"
)

// Handle identifies a pending scheduled callback (spec.md §4.7's
// schedule()'s return value).
type Handle struct {
	h     pqueue.Handle[*schedEntry, core.WrappedTime]
	valid bool
}

type schedEntry struct {
	cb    func() time.Duration
	label string
}

// Scheduler is the single-threaded wrapped-time timer wheel of spec.md
// §4.7, backed by a generic minimum-priority heap (internal/pqueue). The
// clock only advances when Advance is called, matching "the clock is
// refreshed once per loop iteration when I/O returns readiness".
type Scheduler struct {
	mu  sync.Mutex
	pq  *pqueue.Queue[*schedEntry, core.WrappedTime]
	now core.WrappedTime
}

// NewScheduler builds a scheduler with its clock at tick 0.
func NewScheduler() *Scheduler {
	return &Scheduler{pq: pqueue.New[*schedEntry, core.WrappedTime]()}
}

// Now returns the scheduler's current wrapped-time reading.
func (s *Scheduler) Now() core.WrappedTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule arranges for cb to run no earlier than delay from now. It
// satisfies face.Scheduler, letting a face.Queue arm its jittered release
// timer without face importing fw (avoiding an import cycle).
func (s *Scheduler) Schedule(delay time.Duration, cb func() time.Duration) face.SchedulerHandle {
	return s.ScheduleLabeled(delay, "", cb)
}

// ScheduleLabeled is Schedule plus a diagnostic label (spec.md §4.7's
// "evint"), returned as a concrete Handle rather than the opaque
// face.SchedulerHandle.
func (s *Scheduler) ScheduleLabeled(delay time.Duration, label string, cb func() time.Duration) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	fireAt := s.now.Add(core.DurationToTicks(delay))
	h := s.pq.Push(&schedEntry{cb: cb, label: label}, fireAt)
	return Handle{h: h, valid: true}
}

// Cancel removes a pending callback. Safe to call on an already-fired or
// already-canceled handle (spec.md §4.7: "cancel(handle) is safe at any
// time").
func (s *Scheduler) Cancel(h face.SchedulerHandle) {
	sh, ok := h.(Handle)
	if !ok || !sh.valid {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pq.Cancel(sh.h)
}

// Advance refreshes the clock to now and runs every callback whose fire
// time has passed, rearming each at the next-delay it returns (zero means
// stop). Callbacks run synchronously on the caller's goroutine — the
// IoLoop's single goroutine — per spec.md §4.7's cooperative, non-blocking
// contract.
func (s *Scheduler) Advance(now core.WrappedTime) {
	s.mu.Lock()
	s.now = now
	var due []*schedEntry
	for {
		_, prio, ok := s.pq.Peek()
		if !ok || prio.After(now) {
			break
		}
		e, _, _ := s.pq.Pop()
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		next := e.cb()
		if next <= 0 {
			continue
		}
		s.ScheduleLabeled(next, e.label, e.cb)
	}
}

// Pending reports how many callbacks are currently armed.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pq.Len()
}
