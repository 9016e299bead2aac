package optional_test

import (
	"testing"

	"github.com/ccnd-project/ccnd/internal/optional"
	"github.com/stretchr/testify/require"
)

func TestOptional(t *testing.T) {
	o := optional.Some[int](42)
	require.True(t, o.IsSet())
	val, ok := o.Get()
	require.Equal(t, 42, val)
	require.True(t, ok)
	require.Equal(t, 42, o.Unwrap())
	require.Equal(t, 42, o.GetOr(5))

	o = optional.None[int]()
	require.False(t, o.IsSet())
	val, ok = o.Get()
	require.Equal(t, 0, val)
	require.False(t, ok)
	require.Panics(t, func() { o.Unwrap() })
	require.Equal(t, 5, o.GetOr(5))

	o.Set(45)
	require.True(t, o.IsSet())
	require.Equal(t, 45, o.Unwrap())

	o.Unset()
	require.False(t, o.IsSet())
}
