package table

import (
	"testing"
	"time"

	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/ccnd-project/ccnd/internal/optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFaces is a minimal FaceView double: every face exists, is not GG,
// is not DC, has been "received from" before, and tracks pending/
// outstanding counters so invariants can be asserted.
type fakeFaces struct {
	gone      map[uint64]bool
	gg        map[uint64]bool
	pending   map[uint64]int
	upending  map[uint64]int
}

func newFakeFaces() *fakeFaces {
	return &fakeFaces{
		gone:     map[uint64]bool{},
		gg:       map[uint64]bool{},
		pending:  map[uint64]int{},
		upending: map[uint64]int{},
	}
}

func (f *fakeFaces) Exists(faceid uint64) bool        { return !f.gone[faceid] }
func (f *fakeFaces) NoSend(uint64) bool                { return false }
func (f *fakeFaces) IsGG(faceid uint64) bool           { return f.gg[faceid] }
func (f *fakeFaces) IsDC(uint64) bool                  { return false }
func (f *fakeFaces) NeverReceived(uint64) bool         { return false }
func (f *fakeFaces) LinkClass(uint64) int              { return 0 }
func (f *fakeFaces) IncPendingInterests(id uint64)     { f.pending[id]++ }
func (f *fakeFaces) DecPendingInterests(id uint64)     { f.pending[id]-- }
func (f *fakeFaces) IncOutstandingInterests(id uint64) { f.upending[id]++ }
func (f *fakeFaces) DecOutstandingInterests(id uint64) { f.upending[id]-- }

type recordingStrategy struct {
	ops []StrategyOp
}

func (s *recordingStrategy) Callout(op StrategyOp, entry *InterestEntry, faceid uint64) {
	s.ops = append(s.ops, op)
}

func newPITHarness(t *testing.T) (*PIT, *FIB, *fakeFaces, *recordingStrategy) {
	t.Helper()
	fib := NewFIB()
	faces := newFakeFaces()
	strat := &recordingStrategy{}
	pit := NewPIT(fib, NewNonceTable(), strat, faces)
	return pit, fib, faces, strat
}

func interestFor(t *testing.T, uri string, nonce uint32) *ccnb.Interest {
	t.Helper()
	n, err := ccnname.NameFromStr(uri)
	require.NoError(t, err)
	return &ccnb.Interest{Name: n, Nonce: optional.Some(nonce), InterestLifetime: 4 * time.Second}
}

func TestPITMissAndForward(t *testing.T) {
	pit, fib, faces, strat := newPITHarness(t)
	prefix, _ := ccnname.NameFromStr("/a")
	fib.AddForwarding(prefix, 3, FlagActive, 0)

	it := interestFor(t, "/a/x", 1)
	res := pit.Insert(it, 5, 0, func() uint32 { return 1 })

	require.True(t, res.Created)
	assert.Contains(t, strat.ops, OpFirst)

	var dn, up *PFI
	for _, pfi := range res.Entry.PFIs() {
		if pfi.Flags&PFIDnstream != 0 {
			dn = pfi
		}
		if pfi.Flags&PFIUpstream != 0 {
			up = pfi
		}
	}
	require.NotNil(t, dn)
	require.NotNil(t, up)
	assert.Equal(t, uint64(5), dn.FaceID)
	assert.Equal(t, uint64(3), up.FaceID)
	assert.NotZero(t, dn.Flags&PFIPending)
	assert.Equal(t, 1, faces.pending[5])
}

func TestPITDuplicateNonceDoesNotAddSecondUpstreamPending(t *testing.T) {
	pit, fib, faces, _ := newPITHarness(t)
	prefix, _ := ccnname.NameFromStr("/a")
	fib.AddForwarding(prefix, 3, FlagActive, 0)

	it1 := interestFor(t, "/a/x", 42)
	pit.Insert(it1, 5, 0, nil)

	it2 := interestFor(t, "/a/x", 42)
	res2 := pit.Insert(it2, 6, 0, nil)

	var dn6 *PFI
	for _, pfi := range res2.Entry.PFIs() {
		if pfi.FaceID == 6 && pfi.Flags&PFIDnstream != 0 {
			dn6 = pfi
		}
	}
	require.NotNil(t, dn6)
	assert.NotZero(t, dn6.Flags&PFISupdata, "second arrival with duplicate nonce must be marked SUPDATA")
	assert.Zero(t, dn6.Flags&PFIPending, "duplicate must not become PENDING")
	assert.Equal(t, 0, faces.pending[6])
}

func TestPITReapAfterLifetime(t *testing.T) {
	pit, fib, faces, strat := newPITHarness(t)
	prefix, _ := ccnname.NameFromStr("/a")
	fib.AddForwarding(prefix, 3, FlagActive, 0)

	it := interestFor(t, "/a/x", 7)
	it.InterestLifetime = time.Second
	res := pit.Insert(it, 5, 0, nil)
	require.NotNil(t, res.Entry)

	lifetimeTicks := core.DurationToTicks(time.Second + 200*time.Millisecond)
	later := core.WrappedTime(0).Add(lifetimeTicks)
	out := pit.Propagate(res.Entry, later)

	require.True(t, out.Freed)
	assert.Contains(t, strat.ops, OpTimeout)
	assert.Equal(t, 0, faces.pending[5])
}

