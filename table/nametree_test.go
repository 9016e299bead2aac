package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameTreeOrderedLookups(t *testing.T) {
	tree := New[string](nil, Callbacks[string]{})

	keys := []string{"b", "d", "a", "c", "f"}
	for _, k := range keys {
		tree.Enroll([]byte(k), k)
	}

	h, ok := tree.LookupExact([]byte("c"))
	require.True(t, ok)
	assert.Equal(t, "c", h.Payload())

	_, ok = tree.LookupExact([]byte("z"))
	assert.False(t, ok)

	ge, ok := tree.LookupGE([]byte("ba"))
	require.True(t, ok)
	assert.Equal(t, "c", ge.Payload())

	le, ok := tree.LookupLE([]byte("ba"))
	require.True(t, ok)
	assert.Equal(t, "b", le.Payload())

	// in-order walk via Next should be sorted
	min, ok := tree.Min()
	require.True(t, ok)
	var order []string
	for cur, has := min, ok; has; cur, has = tree.Next(cur) {
		order = append(order, cur.Payload())
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "f"}, order)
}

func TestNameTreeCookiesNeverReused(t *testing.T) {
	tree := New[int](nil, Callbacks[int]{})

	h1, c1 := tree.Enroll([]byte("x"), 1)
	h2, c2 := tree.Enroll([]byte("y"), 2)
	assert.NotEqual(t, c1, c2)

	got, ok := tree.FromCookie(c1)
	require.True(t, ok)
	assert.Equal(t, h1.Payload(), got.Payload())

	tree.Destroy(h1)
	_, ok = tree.FromCookie(c1)
	assert.False(t, ok, "cookie must not resolve after destroy")

	h3, c3 := tree.Enroll([]byte("z"), 3)
	assert.NotEqual(t, c1, c3, "cookie must never be reused while a newer entry differs")
	assert.NotEqual(t, c2, c3)

	got2, ok := tree.FromCookie(c2)
	require.True(t, ok)
	assert.Equal(t, h2.Payload(), got2.Payload())
	_ = h3
}

func TestNameTreeDestroyCallbackOrder(t *testing.T) {
	var preRemoved, finalized bool
	cb := Callbacks[int]{
		PreRemove: func(int) { preRemoved = true },
		Finalize: func(int) {
			require.True(t, preRemoved, "finalize must run after pre_remove")
			finalized = true
		},
	}
	tree := New[int](nil, cb)
	h, _ := tree.Enroll([]byte("k"), 1)
	tree.Destroy(h)
	assert.True(t, finalized)
	assert.Equal(t, 0, tree.Size())
}

func TestNameTreeSizeTracksEnrollAndRemove(t *testing.T) {
	tree := New[int](nil, Callbacks[int]{})
	h1, _ := tree.Enroll([]byte("a"), 1)
	tree.Enroll([]byte("b"), 2)
	assert.Equal(t, 2, tree.Size())
	tree.Remove(h1)
	assert.Equal(t, 1, tree.Size())
}
