package fw

import (
	"testing"
	"time"

	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/ccnd-project/ccnd/internal/optional"
	"github.com/ccnd-project/ccnd/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFaceView is a minimal table.FaceView double: every face exists and is
// reachable, nothing is GG or DC, every face has a distinct link class equal
// to its faceid (so scope=2's "not same link class" rule is exercisable).
type fakeFaceView struct{}

func (fakeFaceView) Exists(uint64) bool            { return true }
func (fakeFaceView) NoSend(uint64) bool             { return false }
func (fakeFaceView) IsGG(uint64) bool               { return false }
func (fakeFaceView) IsDC(uint64) bool               { return false }
func (fakeFaceView) NeverReceived(uint64) bool      { return false }
func (fakeFaceView) LinkClass(faceid uint64) int    { return int(faceid) }
func (fakeFaceView) IncPendingInterests(uint64)     {}
func (fakeFaceView) DecPendingInterests(uint64)     {}
func (fakeFaceView) IncOutstandingInterests(uint64) {}
func (fakeFaceView) DecOutstandingInterests(uint64) {}

func newTestEngine(t *testing.T) (*StrategyEngine, *table.FIB, *Scheduler) {
	t.Helper()
	fib := table.NewFIB()
	clock := NewScheduler()
	eng := NewStrategyEngine(fib, fakeFaceView{}, clock)
	return eng, fib, clock
}

func newEntryFor(t *testing.T, fib *table.FIB, uri string) *table.InterestEntry {
	t.Helper()
	name, err := ccnname.NameFromStr(uri)
	require.NoError(t, err)
	node := fib.Enroll(name)
	return &table.InterestEntry{
		Key:    []byte(uri),
		Prefix: node,
		Interest: &ccnb.Interest{
			Name:             name,
			Nonce:            optional.Some(uint32(1)),
			InterestLifetime: 4 * time.Second,
		},
	}
}

func TestDefaultStrategyForwardsOnFirst(t *testing.T) {
	eng, fib, _ := newTestEngine(t)
	prefix, _ := ccnname.NameFromStr("/a")
	fib.AddForwarding(prefix, 3, table.FlagActive, 0)

	entry := newEntryFor(t, fib, "/a/x")
	eng.Callout(table.OpFirst, entry, 5)

	var up *table.PFI
	for _, pfi := range entry.PFIs() {
		if pfi.FaceID == 3 {
			up = pfi
		}
	}
	require.NotNil(t, up)
	assert.NotZero(t, up.Flags&table.PFISendUpst)
}

func TestDefaultStrategyUpdateMarksOnlyAttention(t *testing.T) {
	eng, fib, _ := newTestEngine(t)
	entry := newEntryFor(t, fib, "/a/x")

	attended := entry.SeekUpstreamPFI(10)
	attended.Flags |= table.PFIAttention
	ignored := entry.SeekUpstreamPFI(11)

	eng.Callout(table.OpUpdate, entry, table.NoFaceID)

	assert.NotZero(t, attended.Flags&table.PFISendUpst)
	assert.Zero(t, ignored.Flags&table.PFISendUpst)
}

func TestMulticastStrategySuppressesWithinWindow(t *testing.T) {
	eng, fib, clock := newTestEngine(t)
	require.NoError(t, eng.Attach(fib.Root(), "multicast", nil))
	prefix, _ := ccnname.NameFromStr("/a")
	fib.AddForwarding(prefix, 3, table.FlagActive, 0)

	// Start the clock at a nonzero tick so a real "last sent" timestamp is
	// never confused with the zero-value "never sent" sentinel.
	clock.Advance(core.WrappedTime(0).Add(core.DurationToTicks(time.Second)))

	entry := newEntryFor(t, fib, "/a/x")
	eng.Callout(table.OpFirst, entry, 5)

	up := entry.SeekUpstreamPFI(3)
	require.NotZero(t, up.Flags&table.PFISendUpst, "first send must never be suppressed")

	// Simulate table.PIT.Insert's own bookkeeping pass, which stamps
	// Renewed on every candidate regardless of strategy decision.
	up.Renewed = clock.Now()
	up.Flags &^= table.PFISendUpst

	// Re-run FIRST/UPDATE shortly after: still inside the suppression
	// window, so the second candidacy must not be (re)marked.
	clock.Advance(clock.Now().Add(core.DurationToTicks(100 * time.Millisecond)))
	eng.Callout(table.OpFirst, entry, 5)
	assert.Zero(t, up.Flags&table.PFISendUpst, "resend within MulticastSuppressionTime must be suppressed")

	// Advance past the suppression window: now it may resend.
	clock.Advance(clock.Now().Add(core.DurationToTicks(600 * time.Millisecond)))
	eng.Callout(table.OpFirst, entry, 5)
	assert.NotZero(t, up.Flags&table.PFISendUpst, "resend past the suppression window must be allowed")
}

func TestStrategyInheritanceWalksToNearestAncestor(t *testing.T) {
	eng, fib, _ := newTestEngine(t)
	parentPrefix, _ := ccnname.NameFromStr("/a")
	parentNode := fib.Enroll(parentPrefix)
	require.NoError(t, eng.Attach(parentNode, "multicast", nil))

	entry := newEntryFor(t, fib, "/a/b/c")
	inst := eng.resolve(entry.Prefix)
	_, isMulticast := inst.(*MulticastStrategy)
	assert.True(t, isMulticast, "a descendant with no strategy of its own must inherit its nearest ancestor's")

	require.NoError(t, eng.Attach(fib.Root(), "default", nil))
	_, rootIsDefault := eng.resolve(fib.Root()).(*DefaultStrategy)
	assert.True(t, rootIsDefault)
}

func TestAttachUnknownClassFails(t *testing.T) {
	eng, fib, _ := newTestEngine(t)
	err := eng.Attach(fib.Root(), "no-such-strategy", nil)
	assert.Error(t, err)
}
