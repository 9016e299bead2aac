package table

import (
	"testing"

	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestNonceTableNewRefreshDuplicate(t *testing.T) {
	nt := NewNonceTable()
	now := core.WrappedTime(0)

	assert.Equal(t, OutcomeNew, nt.Query([]byte("n1"), 1, now))
	assert.Equal(t, OutcomeRefresh, nt.Query([]byte("n1"), 1, now))
	assert.Equal(t, OutcomeDuplicate, nt.Query([]byte("n1"), 2, now))
}

func TestNonceTableExpiry(t *testing.T) {
	nt := NewNonceTable()
	now := core.WrappedTime(0)
	nt.Query([]byte("n1"), 1, now)

	later := now.Add(core.DurationToTicks(NonceLifetime + 1))
	assert.Equal(t, OutcomeNew, nt.Query([]byte("n1"), 2, later), "expired nonce must be treated as new")
}

func TestNonceTableLazyEvictionBound(t *testing.T) {
	nt := NewNonceTable()
	now := core.WrappedTime(0)
	for i := 0; i < 20; i++ {
		nt.Query([]byte{byte(i)}, uint64(i), now)
	}
	later := now.Add(core.DurationToTicks(NonceLifetime + 1))
	// A single query only evicts up to MaxLazyExpire entries from the head.
	nt.Query([]byte("probe"), 99, later)
	remaining := 0
	for _, list := range nt.buckets {
		remaining += len(list)
	}
	assert.GreaterOrEqual(t, remaining, 20+1-MaxLazyExpire)
}
