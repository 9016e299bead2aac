// Package table holds the ordered and hashed indexes the forwarding core is
// built from: the name tree, Content Store, FIB, PIT and nonce table.
package table

import (
	"bytes"
	"math/rand/v2"
)

// CompareFunc orders two flat-name keys, returning <0, 0, >0 the way
// bytes.Compare does. The same tree type backs both the CS name index
// (keyed on flat name bytes) and the CS staleness index (keyed on a 32-bit
// staletime reinterpreted as a 4-byte key), so the compare function is
// pluggable rather than hardcoded to bytes.Compare.
type CompareFunc func(a, b []byte) int

// ByteCompare is the default CompareFunc, used for the flat-name index.
func ByteCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Callbacks are invoked by Destroy around entry removal.
type Callbacks[T any] struct {
	// PreRemove runs before the node is unlinked from the tree.
	PreRemove func(payload T)
	// Finalize runs after the node is unlinked, once it can no longer be
	// reached by any tree operation.
	Finalize func(payload T)
}

type treapNode[T any] struct {
	key      []byte
	priority uint64
	left     *treapNode[T]
	right    *treapNode[T]
	parent   *treapNode[T]
	cookie   uint32
	payload  T
}

// NameTree is an ordered map from flat-name byte strings to payloads,
// implemented as a treap so that lookup_exact/lookup_ge/lookup_le/next/prev
// are all O(log n) in expectation without needing to rebalance explicitly.
// Every enrolled entry also gets a stable, never-reused cookie for O(1)
// reverse lookup (FromCookie), matching the name-tree handle scheme of
// spec.md §4.1.
type NameTree[T any] struct {
	root       *treapNode[T]
	compare    CompareFunc
	callbacks  Callbacks[T]
	byCookie   map[uint32]*treapNode[T]
	nextCookie uint32
	size       int
}

// New builds an empty NameTree using the given key comparator and
// removal callbacks.
func New[T any](compare CompareFunc, cb Callbacks[T]) *NameTree[T] {
	if compare == nil {
		compare = ByteCompare
	}
	return &NameTree[T]{
		compare:  compare,
		callbacks: cb,
		byCookie: make(map[uint32]*treapNode[T]),
	}
}

// Size returns the number of enrolled entries.
func (t *NameTree[T]) Size() int { return t.size }

// Grow is a no-op on a treap, which never needs preallocated capacity; it
// exists so callers written against the slot-array FaceTable idiom (§4.2)
// can treat both tables uniformly.
func (t *NameTree[T]) Grow() {}

// Handle is an opaque reference to an enrolled entry, returned by lookups
// and accepted by Next/Prev/Remove/Destroy.
type Handle[T any] struct {
	node *treapNode[T]
}

// Payload returns the entry's value.
func (h Handle[T]) Payload() T { return h.node.payload }

// Key returns the entry's flat-name key. Callers must not mutate it.
func (h Handle[T]) Key() []byte { return h.node.key }

// Cookie returns the entry's stable cookie.
func (h Handle[T]) Cookie() uint32 { return h.node.cookie }

// Valid reports whether this handle refers to a real node (zero Handle
// values are invalid, the way a nil pointer would be).
func (h Handle[T]) Valid() bool { return h.node != nil }

func (t *NameTree[T]) issueCookie(n *treapNode[T]) uint32 {
	for {
		t.nextCookie++
		if t.nextCookie == 0 {
			continue // 0 is reserved as "no cookie"
		}
		if _, taken := t.byCookie[t.nextCookie]; !taken {
			n.cookie = t.nextCookie
			t.byCookie[t.nextCookie] = n
			return t.nextCookie
		}
	}
}

// LookupExact returns the entry whose key equals key, if any.
func (t *NameTree[T]) LookupExact(key []byte) (Handle[T], bool) {
	n := t.root
	for n != nil {
		c := t.compare(key, n.key)
		switch {
		case c == 0:
			return Handle[T]{n}, true
		case c < 0:
			n = n.left
		default:
			n = n.right
		}
	}
	return Handle[T]{}, false
}

// LookupGE returns the entry with the smallest key >= key.
func (t *NameTree[T]) LookupGE(key []byte) (Handle[T], bool) {
	n := t.root
	var best *treapNode[T]
	for n != nil {
		c := t.compare(key, n.key)
		switch {
		case c == 0:
			return Handle[T]{n}, true
		case c < 0:
			best = n
			n = n.left
		default:
			n = n.right
		}
	}
	if best == nil {
		return Handle[T]{}, false
	}
	return Handle[T]{best}, true
}

// LookupLE returns the entry with the largest key <= key.
func (t *NameTree[T]) LookupLE(key []byte) (Handle[T], bool) {
	n := t.root
	var best *treapNode[T]
	for n != nil {
		c := t.compare(key, n.key)
		switch {
		case c == 0:
			return Handle[T]{n}, true
		case c < 0:
			n = n.left
		default:
			best = n
			n = n.right
		}
	}
	if best == nil {
		return Handle[T]{}, false
	}
	return Handle[T]{best}, true
}

func leftmost[T any](n *treapNode[T]) *treapNode[T] {
	for n.left != nil {
		n = n.left
	}
	return n
}

func rightmost[T any](n *treapNode[T]) *treapNode[T] {
	for n.right != nil {
		n = n.right
	}
	return n
}

// Next returns the in-order successor of y.
func (t *NameTree[T]) Next(y Handle[T]) (Handle[T], bool) {
	n := y.node
	if n.right != nil {
		return Handle[T]{leftmost(n.right)}, true
	}
	for n.parent != nil && n.parent.right == n {
		n = n.parent
	}
	if n.parent == nil {
		return Handle[T]{}, false
	}
	return Handle[T]{n.parent}, true
}

// Prev returns the in-order predecessor of y.
func (t *NameTree[T]) Prev(y Handle[T]) (Handle[T], bool) {
	n := y.node
	if n.left != nil {
		return Handle[T]{rightmost(n.left)}, true
	}
	for n.parent != nil && n.parent.left == n {
		n = n.parent
	}
	if n.parent == nil {
		return Handle[T]{}, false
	}
	return Handle[T]{n.parent}, true
}

// FromCookie reverses Enroll's cookie assignment.
func (t *NameTree[T]) FromCookie(cookie uint32) (Handle[T], bool) {
	n, ok := t.byCookie[cookie]
	if !ok {
		return Handle[T]{}, false
	}
	return Handle[T]{n}, true
}

func (t *NameTree[T]) rotateLeft(x *treapNode[T]) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x.parent.left == x {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *NameTree[T]) rotateRight(x *treapNode[T]) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x.parent.left == x {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.right = x
	x.parent = y
}

// Enroll inserts a new entry for key (which must not already be present)
// and returns its handle and freshly assigned cookie. The key is retained
// by reference; callers must not mutate it afterward.
func (t *NameTree[T]) Enroll(key []byte, payload T) (Handle[T], uint32) {
	n := &treapNode[T]{key: key, priority: rand.Uint64(), payload: payload}

	if t.root == nil {
		t.root = n
	} else {
		cur := t.root
		for {
			c := t.compare(n.key, cur.key)
			if c < 0 {
				if cur.left == nil {
					cur.left = n
					n.parent = cur
					break
				}
				cur = cur.left
			} else {
				if cur.right == nil {
					cur.right = n
					n.parent = cur
					break
				}
				cur = cur.right
			}
		}
		// Bubble up by rotation until the min-heap property on priority
		// holds (treap heap order: parent.priority <= child.priority).
		for n.parent != nil && n.parent.priority > n.priority {
			if n.parent.left == n {
				t.rotateRight(n.parent)
			} else {
				t.rotateLeft(n.parent)
			}
		}
	}

	t.size++
	cookie := t.issueCookie(n)
	return Handle[T]{n}, cookie
}

// merge joins two subtrees known to be key-ordered (everything under left
// sorts before everything under right), preserving heap order, and returns
// the new subtree root with parent left unset (caller fixes it up).
func merge[T any](left, right *treapNode[T]) *treapNode[T] {
	switch {
	case left == nil:
		return right
	case right == nil:
		return left
	case left.priority < right.priority:
		left.right = merge(left.right, right)
		if left.right != nil {
			left.right.parent = left
		}
		return left
	default:
		right.left = merge(left, right.left)
		if right.left != nil {
			right.left.parent = right
		}
		return right
	}
}

func (t *NameTree[T]) unlink(n *treapNode[T]) {
	child := merge(n.left, n.right)
	if child != nil {
		child.parent = n.parent
	}
	switch {
	case n.parent == nil:
		t.root = child
	case n.parent.left == n:
		n.parent.left = child
	default:
		n.parent.right = child
	}
	delete(t.byCookie, n.cookie)
	t.size--
}

// Remove unlinks y without invoking callbacks.
func (t *NameTree[T]) Remove(y Handle[T]) {
	t.unlink(y.node)
}

// Destroy invokes PreRemove, unlinks y, then invokes Finalize — the
// sequence spec.md §4.1 requires of name-tree removal.
func (t *NameTree[T]) Destroy(y Handle[T]) {
	if t.callbacks.PreRemove != nil {
		t.callbacks.PreRemove(y.node.payload)
	}
	t.unlink(y.node)
	if t.callbacks.Finalize != nil {
		t.callbacks.Finalize(y.node.payload)
	}
}

// Min returns the entry with the smallest key, if the tree is non-empty.
func (t *NameTree[T]) Min() (Handle[T], bool) {
	if t.root == nil {
		return Handle[T]{}, false
	}
	return Handle[T]{leftmost(t.root)}, true
}

// Max returns the entry with the largest key, if the tree is non-empty.
func (t *NameTree[T]) Max() (Handle[T], bool) {
	if t.root == nil {
		return Handle[T]{}, false
	}
	return Handle[T]{rightmost(t.root)}, true
}
