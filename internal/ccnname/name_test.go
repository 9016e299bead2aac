package ccnname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameFromStrRoundTrip(t *testing.T) {
	n, err := NameFromStr("/a/b/c")
	assert.NoError(t, err)
	assert.Equal(t, "/a/b/c", n.String())

	flat := n.Flat()
	back, err := ParseName(flat)
	assert.NoError(t, err)
	assert.True(t, n.Equal(back))
}

func TestNameCompareRelations(t *testing.T) {
	ab, _ := NameFromStr("/a/b")
	a, _ := NameFromStr("/a")
	abc, _ := NameFromStr("/a/b/c")
	ac, _ := NameFromStr("/a/c")

	assert.Equal(t, RelEqual, ab.Compare(ab))
	assert.Equal(t, RelStrictPrefix, a.Compare(ab))
	assert.Equal(t, RelExtensionOf, ab.Compare(a))
	assert.Equal(t, RelLess, ab.Compare(ac))
	assert.Equal(t, RelGreater, ac.Compare(ab))
	assert.True(t, a.IsPrefix(abc))
	assert.False(t, abc.IsPrefix(a))
}

func TestNameAppendAndClone(t *testing.T) {
	n, _ := NameFromStr("/a")
	n2 := n.Append(NewGenericComponent("b"))
	assert.Equal(t, "/a/b", n2.String())
	assert.Equal(t, "/a", n.String()) // original untouched

	clone := n2.Clone()
	assert.True(t, clone.Equal(n2))
	clone[0].Val[0] = 'z'
	assert.True(t, n2[0].Val[0] != 'z')
}
