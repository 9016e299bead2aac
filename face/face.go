// Package face implements the FaceTable (spec.md §4.2) and the per-face
// SendQueue (spec.md §4.6): addressing-neutral communication endpoints and
// the class-based, jittered output queueing built on top of them.
package face

import (
	"fmt"
	"net"
	"sync/atomic"
)

// Flag is the face attribute bitset of spec.md §3.
type Flag uint32

const (
	FlagLocal Flag = 1 << iota
	FlagInet
	FlagInet6
	FlagLoopback
	FlagMcast
	FlagDgram
	FlagStream
	FlagPassive
	FlagUndecided
	FlagGG // "good-guy": trusted local peer
	FlagPermanent
	FlagNoSend
	FlagNoRecv
	FlagConnecting
	FlagClosing
	FlagDC // direct-control
	FlagLink
	FlagRegOk // peer is permitted prefixreg/setstrategy without GG (spec.md §6)
)

// DelayClass is one of the three per-face SendQueue classes (spec.md §4.6).
type DelayClass int

const (
	ClassASAP DelayClass = iota
	ClassNormal
	ClassSlow
	numClasses
)

// Transport is the minimal I/O surface a face needs; concrete
// implementations (tcp, udp, unix, websocket, webtransport/http3) live in
// this package's transport_*.go files.
type Transport interface {
	// Send writes one framed message. It must not block; callers treat
	// any error as spec.md §7's SendDeferred/SendBroken/FaceGone outcomes.
	Send(msg []byte) error
	// Close releases the underlying connection or socket.
	Close() error
	// RemoteAddr describes the remote endpoint, used for face flag
	// derivation (LOOPBACK, MCAST, ...) and diagnostics.
	RemoteAddr() net.Addr
}

// Face is a communication endpoint. Fields mirror spec.md §3's "Face"
// entry; PFIs never hold a pointer to a Face (spec.md §9's cyclic-
// reference design note) — they look one up by faceid through FaceTable
// each time they need it.
type Face struct {
	ID        uint64
	Flags     atomic.Uint32
	Transport Transport

	// PendingInterests/OutstandingInterests are the PIT-visible counters
	// spec.md §3's PIT invariant ties to PENDING/UPENDING PFI counts.
	PendingInterests     atomic.Int32
	OutstandingInterests atomic.Int32

	// BytesIn/BytesOut/PacketsIn/PacketsOut are the per-face meters
	// spec.md §3 mentions ("byte/packet meters").
	BytesIn, BytesOut     atomic.Uint64
	PacketsIn, PacketsOut atomic.Uint64

	// LastSequence is the unicast datagram link-probe sub-protocol's
	// sequence-number state (spec.md §4.8).
	LastSequence uint32

	queues [numClasses]*Queue

	// everReceived tracks whether this face has ever produced an
	// application-layer message, used by the PIT's INACTIVE
	// classification (spec.md §4.4 step 2) for datagram faces.
	everReceived atomic.Bool
}

// String identifies the face for logging (core.Log's source argument).
func (f *Face) String() string {
	if f.Transport != nil {
		return fmt.Sprintf("face(%d, %s)", f.ID, f.Transport.RemoteAddr())
	}
	return fmt.Sprintf("face(%d)", f.ID)
}

// HasFlag reports whether every bit in mask is set.
func (f *Face) HasFlag(mask Flag) bool {
	return Flag(f.Flags.Load())&mask == mask
}

// SetFlag/ClearFlag mutate the flag bitset atomically.
func (f *Face) SetFlag(mask Flag)   { orUint32(&f.Flags, uint32(mask)) }
func (f *Face) ClearFlag(mask Flag) { andNotUint32(&f.Flags, uint32(mask)) }

func orUint32(a *atomic.Uint32, bits uint32) {
	for {
		old := a.Load()
		if a.CompareAndSwap(old, old|bits) {
			return
		}
	}
}

func andNotUint32(a *atomic.Uint32, bits uint32) {
	for {
		old := a.Load()
		if a.CompareAndSwap(old, old&^bits) {
			return
		}
	}
}

// MarkReceived records that a CCN message was actually parsed from this
// face, promoting it out of UNDECIDED (spec.md §4.8) and out of the PIT's
// never-received/INACTIVE classification.
func (f *Face) MarkReceived() {
	f.everReceived.Store(true)
	f.ClearFlag(FlagUndecided)
}

// NeverReceived reports the PIT's "datagram with no prior receives" test.
func (f *Face) NeverReceived() bool {
	return !f.everReceived.Load()
}

// DelayClassFor picks the SendQueue class for Content on this face,
// implementing spec.md §4.6's class-selection table.
func DelayClassFor(f *Face, slowSend bool) DelayClass {
	if f == nil || f.HasFlag(FlagClosing) || f.HasFlag(FlagNoSend) {
		return ClassASAP
	}
	if f.HasFlag(FlagGG) || f.HasFlag(FlagLocal) {
		return ClassASAP
	}
	if f.HasFlag(FlagMcast) {
		if slowSend {
			return ClassSlow
		}
		return ClassNormal
	}
	return ClassNormal
}
