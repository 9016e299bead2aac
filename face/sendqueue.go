package face

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ccnd-project/ccnd/table"
)

// burstNsec is the per-1KiB transmission cost a single fire() charges
// against its 1ms budget (spec.md §4.6's "burst_nsec"); spec.md gives no
// exact figure, so this is a chosen constant (see DESIGN.md).
const burstNsec = 100 * time.Microsecond

// burstBudgetCap is the per-fire cumulative nanosecond budget (spec.md
// §4.6's "1 ms cap").
const burstBudgetCap = time.Millisecond

// nrunPreferredThreshold is where in spec.md §4.6's "[12, 120)" range a
// face is promoted to preferred-provider status, suppressing jitter.
const nrunPreferredThreshold = 12

// SchedulerHandle is an opaque reference to an armed timer, returned by
// Scheduler.Schedule and consumed by Scheduler.Cancel.
type SchedulerHandle any

// Scheduler is the slice of fw.Scheduler (spec.md §4.7) a Queue needs to
// arrange its jittered release timer. Defined here rather than imported
// from fw to avoid a face->fw import cycle (fw imports face); fw.Scheduler
// satisfies this interface. cb follows spec.md §4.7's cooperative
// contract: it returns the next delay to rearm at, or zero to stop.
type Scheduler interface {
	Schedule(delay time.Duration, cb func() time.Duration) SchedulerHandle
	Cancel(h SchedulerHandle)
}

// Queue is one of a face's three per-delay-class SendQueues (spec.md
// §4.6). It stores content cookies, not pointers, and is set-like: a
// cookie already present is never queued twice. A cleared slot (by
// multicast coalescing) is left in place as a 0 sentinel rather than
// spliced out, so FIFO order of the remaining items is preserved cheaply;
// cookie 0 is never issued by ContentStore, so it is safe as a tombstone.
type Queue struct {
	mu    sync.Mutex
	face  *Face
	class DelayClass
	cs    *table.ContentStore
	sched Scheduler

	items   []uint32
	present map[uint32]bool
	nrun    int
	armed   SchedulerHandle
}

func newQueue(f *Face, class DelayClass, cs *table.ContentStore, sched Scheduler) *Queue {
	return &Queue{
		face:    f,
		class:   class,
		cs:      cs,
		sched:   sched,
		present: make(map[uint32]bool),
	}
}

// Contains reports whether cookie is currently queued on this class.
func (q *Queue) Contains(cookie uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.present[cookie]
}

// Insert enqueues cookie, first scanning the face's other delay classes
// for the multicast-coalescing rule of spec.md §4.6: if the cookie is
// already queued anywhere else on this face, this insert is a no-op —
// the earlier queue will carry it.
func (q *Queue) Insert(cookie uint32) {
	for _, sibling := range q.face.queues {
		if sibling != nil && sibling != q && sibling.Contains(cookie) {
			return
		}
	}

	q.mu.Lock()
	if q.present[cookie] {
		q.mu.Unlock()
		return
	}
	if e, ok := q.cs.FromCookie(cookie); ok {
		q.cs.IncRef(e)
	}
	q.items = append(q.items, cookie)
	q.present[cookie] = true
	needsArm := len(q.items) == 1 && q.armed == nil
	q.mu.Unlock()

	if needsArm {
		q.arm()
	}
}

// clearInPlace implements the receiving half of multicast coalescing
// (spec.md §4.6): on seeing a peer transmit the same object, the
// Content-path handler clears the already-queued cookie and drops the
// refcount it held, suppressing the daemon's own redundant send.
func (q *Queue) clearInPlace(cookie uint32) bool {
	q.mu.Lock()
	if !q.present[cookie] {
		q.mu.Unlock()
		return false
	}
	for i, c := range q.items {
		if c == cookie {
			q.items[i] = 0
			break
		}
	}
	delete(q.present, cookie)
	q.mu.Unlock()

	if e, ok := q.cs.FromCookie(cookie); ok {
		q.cs.DecRef(e)
	}
	return true
}

func (q *Queue) delayParams() (min, jitter time.Duration) {
	switch q.class {
	case ClassASAP:
		return 0, 200 * time.Microsecond
	case ClassSlow:
		return 20 * time.Millisecond, 80 * time.Millisecond
	default: // ClassNormal
		return time.Millisecond, 4 * time.Millisecond
	}
}

func (q *Queue) nextDelay() time.Duration {
	min, jitter := q.delayParams()
	if q.nrun >= nrunPreferredThreshold {
		return min // preferred provider: randomized component suppressed
	}
	if jitter <= 0 {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(jitter)))
}

func (q *Queue) arm() {
	q.mu.Lock()
	delay := q.nextDelay()
	q.mu.Unlock()
	q.handleArm(q.sched.Schedule(delay, q.fire))
}

func (q *Queue) handleArm(h SchedulerHandle) {
	q.mu.Lock()
	q.armed = h
	q.mu.Unlock()
}

// fire is the scheduler callback: transmit up to 2 items, charging each
// against a 1ms cumulative nanosecond budget, then either stop (queue
// drained) or report the next jittered delay (spec.md §4.6).
func (q *Queue) fire() time.Duration {
	q.mu.Lock()
	var budget time.Duration
	sent := 0
	for sent < 2 && len(q.items) > 0 {
		cookie := q.items[0]
		q.items = q.items[1:]
		if cookie == 0 {
			continue // tombstone left by a coalesced clear
		}
		delete(q.present, cookie)

		entry, ok := q.cs.FromCookie(cookie)
		q.mu.Unlock()
		if ok {
			if q.transmit(entry) {
				budget += burstNsec * time.Duration(ceilDiv(entry.Size, 1024))
				sent++
			}
			q.cs.DecRef(entry)
		}
		q.mu.Lock()
		if budget >= burstBudgetCap {
			break
		}
	}

	drained := len(q.items) == 0
	if drained {
		q.nrun = 0
		q.armed = nil
	} else {
		q.nrun++
	}
	next := q.nextDelay()
	q.mu.Unlock()

	if drained {
		return 0
	}
	return next
}

// transmit sends one content entry's wire bytes, abandoning silently if
// the face has disappeared mid-burst (spec.md §4.6).
func (q *Queue) transmit(e *table.ContentEntry) bool {
	if q.face.Transport == nil || q.face.HasFlag(FlagClosing) {
		return false
	}
	if err := q.face.Transport.Send(e.Wire); err != nil {
		return false
	}
	q.face.BytesOut.Add(uint64(e.Size))
	q.face.PacketsOut.Add(1)
	return true
}

// Close cancels the queue's armed timer and drops every held refcount,
// used when a face is destroyed (spec.md §4.6: "decremented ... on queue
// destruction").
func (q *Queue) Close() {
	q.mu.Lock()
	if q.armed != nil && q.sched != nil {
		q.sched.Cancel(q.armed)
		q.armed = nil
	}
	items := q.items
	q.items = nil
	q.present = make(map[uint32]bool)
	q.mu.Unlock()

	for _, cookie := range items {
		if cookie == 0 {
			continue
		}
		if e, ok := q.cs.FromCookie(cookie); ok {
			q.cs.DecRef(e)
		}
	}
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// InitQueues builds the three per-delay-class queues once a face has a
// content store and scheduler to bind to; called after the face is
// enrolled into the FaceTable.
func (f *Face) InitQueues(cs *table.ContentStore, sched Scheduler) {
	for c := DelayClass(0); c < numClasses; c++ {
		f.queues[c] = newQueue(f, c, cs, sched)
	}
}

// Enqueue places cookie on the named delay class's SendQueue.
func (f *Face) Enqueue(class DelayClass, cookie uint32) {
	if q := f.queues[class]; q != nil {
		q.Insert(cookie)
	}
}

// ClearQueuedCookie implements the multicast-coalescing receive path:
// whichever of the face's queues holds cookie clears it in place.
func (f *Face) ClearQueuedCookie(cookie uint32) {
	for _, q := range f.queues {
		if q != nil && q.clearInPlace(cookie) {
			return
		}
	}
}

// CloseQueues cancels every queue's timer and releases held refcounts,
// called when the face is removed from the FaceTable.
func (f *Face) CloseQueues() {
	for _, q := range f.queues {
		if q != nil {
			q.Close()
		}
	}
}
