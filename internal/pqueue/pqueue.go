// Package pqueue is a generic minimum-priority heap, the data structure
// fw.Scheduler threads its timer wheel through. Adapted from the teacher's
// std/types/priority_queue (container/heap + golang.org/x/exp/constraints),
// with Cancel added so a scheduled callback can be canceled before it fires.
package pqueue

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

type entry[V any, P constraints.Ordered] struct {
	value    V
	priority P
	index    int
}

type heapSlice[V any, P constraints.Ordered] []*entry[V, P]

func (h heapSlice[V, P]) Len() int            { return len(h) }
func (h heapSlice[V, P]) Less(i, j int) bool  { return h[i].priority < h[j].priority }
func (h heapSlice[V, P]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *heapSlice[V, P]) Push(x any) {
	e := x.(*entry[V, P])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *heapSlice[V, P]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Handle identifies a pending entry so it can be canceled.
type Handle[V any, P constraints.Ordered] struct {
	e *entry[V, P]
}

// Queue is a minimum-priority heap keyed by P (wrapped-time ticks in
// fw.Scheduler's use, spec.md §4.7).
type Queue[V any, P constraints.Ordered] struct {
	h heapSlice[V, P]
}

// New builds an empty queue.
func New[V any, P constraints.Ordered]() *Queue[V, P] {
	return &Queue[V, P]{}
}

// Len is the number of pending entries.
func (q *Queue[V, P]) Len() int { return len(q.h) }

// Push inserts value at priority and returns a handle for Cancel.
func (q *Queue[V, P]) Push(value V, priority P) Handle[V, P] {
	e := &entry[V, P]{value: value, priority: priority}
	heap.Push(&q.h, e)
	return Handle[V, P]{e: e}
}

// Peek returns the minimum-priority value without removing it.
func (q *Queue[V, P]) Peek() (V, P, bool) {
	if len(q.h) == 0 {
		var zero V
		var zp P
		return zero, zp, false
	}
	return q.h[0].value, q.h[0].priority, true
}

// Pop removes and returns the minimum-priority value.
func (q *Queue[V, P]) Pop() (V, P, bool) {
	if len(q.h) == 0 {
		var zero V
		var zp P
		return zero, zp, false
	}
	e := heap.Pop(&q.h).(*entry[V, P])
	return e.value, e.priority, true
}

// Cancel removes the entry referenced by h, if it is still pending. Safe
// to call more than once or after the entry has already fired.
func (q *Queue[V, P]) Cancel(h Handle[V, P]) {
	if h.e == nil || h.e.index < 0 || h.e.index >= len(q.h) || q.h[h.e.index] != h.e {
		return
	}
	heap.Remove(&q.h, h.e.index)
	h.e.index = -1
}
