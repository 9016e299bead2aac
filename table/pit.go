package table

import (
	"time"

	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/core"
)

// PFIFlag is the per-face-item flag bitfield of spec.md §3.
type PFIFlag uint32

const (
	PFIDnstream PFIFlag = 1 << iota
	PFIUpstream
	PFIPending
	PFIUpending
	PFISendUpst
	PFIUphungry
	PFIInactive
	PFISupdata
	PFIAttention
	PFIDCFace
)

// PFI is a per-face item inside a PIT entry: one per direction per face.
type PFI struct {
	FaceID  uint64
	Flags   PFIFlag
	Nonce   []byte
	Renewed core.WrappedTime
	Expiry  core.WrappedTime
}

// InterestEntry is the PIT's per-fingerprint record (spec.md §3).
type InterestEntry struct {
	Key     []byte
	Serial  uint64
	Birth   core.WrappedTime
	Renewed core.WrappedTime

	// Renewals counts how many times an arriving Interest matched this
	// already-live entry (spec.md §3).
	Renewals int

	Prefix *NamePrefixEntry

	// Interest is the representative Interest this entry aggregates
	// under: every arrival that maps to the same key by construction
	// shares identical selectors, so satisfaction testing against any one
	// of them is authoritative for the whole entry.
	Interest *ccnb.Interest

	pfis []*PFI
}

// PFIs exposes the entry's per-face items for strategy/inspection code.
func (e *InterestEntry) PFIs() []*PFI { return e.pfis }

func (e *InterestEntry) seekOrCreatePFI(faceid uint64, dir PFIFlag) *PFI {
	for _, p := range e.pfis {
		if p.FaceID == faceid && p.Flags&(PFIDnstream|PFIUpstream) == dir {
			return p
		}
	}
	p := &PFI{FaceID: faceid, Flags: dir}
	e.pfis = append(e.pfis, p)
	return p
}

// SeekUpstreamPFI exposes PFI lookup-or-create to the StrategyEngine
// (spec.md §4.9's "pfi_seek"); strategies use this to set SENDUPST.
func (e *InterestEntry) SeekUpstreamPFI(faceid uint64) *PFI {
	return e.seekOrCreatePFI(faceid, PFIUpstream)
}

func (e *InterestEntry) earliestExpiry() core.WrappedTime {
	first := true
	var min core.WrappedTime
	for _, p := range e.pfis {
		if first || p.Expiry.Before(min) {
			min = p.Expiry
			first = false
		}
	}
	return min
}

// StrategyOp enumerates the callout events of spec.md §4.9.
type StrategyOp int

const (
	OpInit StrategyOp = iota
	OpFirst
	OpRefresh
	OpTimeout
	OpSatisfied
	OpExpDn
	OpExpUp
	OpUpdate
	OpFinalize
)

func (op StrategyOp) String() string {
	switch op {
	case OpInit:
		return "INIT"
	case OpFirst:
		return "FIRST"
	case OpRefresh:
		return "REFRESH"
	case OpTimeout:
		return "TIMEOUT"
	case OpSatisfied:
		return "SATISFIED"
	case OpExpDn:
		return "EXPDN"
	case OpExpUp:
		return "EXPUP"
	case OpUpdate:
		return "UPDATE"
	case OpFinalize:
		return "FINALIZE"
	default:
		return "UNKNOWN"
	}
}

// NoFaceID is the sentinel passed to callouts not associated with a face.
const NoFaceID = ^uint64(0)

// StrategyCallout is the StrategyEngine's entry point, as the PIT sees it.
type StrategyCallout interface {
	Callout(op StrategyOp, entry *InterestEntry, faceid uint64)
}

// FaceView is the minimal face-table surface the PIT needs. It is kept as
// an interface, rather than importing the face package directly, so that
// table has no dependency on face — fw wires a concrete adapter over the
// real FaceTable (avoiding an import cycle, since face's SendQueue already
// imports table to resolve ContentEntry cookies).
type FaceView interface {
	Exists(faceid uint64) bool
	NoSend(faceid uint64) bool
	IsGG(faceid uint64) bool
	IsDC(faceid uint64) bool
	NeverReceived(faceid uint64) bool
	LinkClass(faceid uint64) int
	IncPendingInterests(faceid uint64)
	DecPendingInterests(faceid uint64)
	IncOutstandingInterests(faceid uint64)
	DecOutstandingInterests(faceid uint64)
}

// PIT is the Pending Interest Table of spec.md §4.4.
type PIT struct {
	fib      *FIB
	nonces   *NonceTable
	strategy StrategyCallout
	faces    FaceView

	byKey  map[string]*InterestEntry
	serial uint64
}

// NewPIT builds an empty PIT wired to the given FIB, nonce table, strategy
// dispatcher and face-table view.
func NewPIT(fib *FIB, nonces *NonceTable, strategy StrategyCallout, faces FaceView) *PIT {
	return &PIT{fib: fib, nonces: nonces, strategy: strategy, faces: faces, byKey: make(map[string]*InterestEntry)}
}

const eighthSecond = 125 * time.Millisecond
const maxInterestLifetime = 7 * 24 * time.Hour

// clampLifetime enforces spec.md §4.4 step 6's "[1/8s, 1 week] rounded up
// to 1/8 second" rule.
func clampLifetime(d time.Duration) time.Duration {
	if d < eighthSecond {
		d = eighthSecond
	}
	if d > maxInterestLifetime {
		d = maxInterestLifetime
	}
	if rem := d % eighthSecond; rem != 0 {
		d += eighthSecond - rem
	}
	return d
}

// InterestKey is the PIT's aggregation fingerprint: the Interest's Name
// and selectors (everything except Nonce and InterestLifetime, which must
// not affect aggregation), with a reserved separator byte after the name
// so no two distinct (name, selector) combinations can collide by simple
// concatenation (spec.md §3's "reserved zero byte").
func InterestKey(it *ccnb.Interest) []byte {
	buf := append([]byte{}, it.Name.Flat()...)
	buf = append(buf, 0x00)
	if v, ok := it.MinSuffixComponents.Get(); ok {
		buf = append(buf, 0x01, byte(v))
	}
	if v, ok := it.MaxSuffixComponents.Get(); ok {
		buf = append(buf, 0x02, byte(v))
	}
	if it.MustBeFresh {
		buf = append(buf, 0x03)
	}
	if it.ChildSelector == ccnb.ChildSelectorRightmost {
		buf = append(buf, 0x04)
	}
	if it.Exclude != nil {
		buf = append(buf, 0x05)
		if it.Exclude.AnyFirst {
			buf = append(buf, 0x01)
		}
		for _, c := range it.Exclude.Components {
			buf = append(buf, c.Bytes()...)
		}
	}
	return buf
}

func nonceKeyBytes(nonce uint32) []byte {
	return []byte{byte(nonce >> 24), byte(nonce >> 16), byte(nonce >> 8), byte(nonce)}
}

// InsertResult reports the side effects of Insert that the ForwardingEngine
// must act on (scheduling and tap delivery are I/O concerns left to fw).
type InsertResult struct {
	Entry          *InterestEntry
	Created        bool
	EarliestExpiry core.WrappedTime
	TapFaces       []uint64
}

// Insert implements spec.md §4.4's "Insert on arriving Interest from face F".
func (p *PIT) Insert(it *ccnb.Interest, arrivalFace uint64, now core.WrappedTime, genNonce func() uint32) InsertResult {
	key := InterestKey(it)
	entry, existed := p.byKey[string(key)]
	var tapFaces []uint64

	if existed {
		entry.Renewals++
		p.strategy.Callout(OpRefresh, entry, arrivalFace)
	} else {
		p.serial++
		node := p.fib.Enroll(it.Name)
		entry = &InterestEntry{
			Key: key, Serial: p.serial, Birth: now, Renewed: now,
			Prefix: node, Interest: it,
		}
		p.byKey[string(key)] = entry
		if node.interests == nil {
			node.interests = make(map[*InterestEntry]struct{})
		}
		node.interests[entry] = struct{}{}
		p.strategy.Callout(OpFirst, entry, arrivalFace)
		for _, fe := range p.fib.Tap(node) {
			tapFaces = append(tapFaces, fe.FaceID)
		}
	}

	dfi := entry.seekOrCreatePFI(arrivalFace, PFIDnstream)

	nonceVal, hasNonce := it.Nonce.Get()
	if !hasNonce {
		nonceVal = genNonce()
	}
	nb := nonceKeyBytes(nonceVal)
	outcome := p.nonces.Query(nb, arrivalFace, now)

	if outcome == OutcomeDuplicate {
		dfi.Flags |= PFISupdata
	} else {
		dfi.Flags &^= PFISupdata
		if dfi.Flags&PFIPending == 0 {
			dfi.Flags |= PFIPending
			p.faces.IncPendingInterests(arrivalFace)
		}
		entry.Renewed = now
		dfi.Renewed = now
		dfi.Expiry = now.Add(core.DurationToTicks(clampLifetime(it.InterestLifetime)))
		dfi.Nonce = nb
	}

	explicitFaceID, hasExplicit := it.FaceID.Get()
	src := SourceClass{GG: p.faces.IsGG(arrivalFace), FaceID: arrivalFace, LinkClass: p.faces.LinkClass(arrivalFace)}
	scope := it.Scope.GetOr(3)
	outbound := p.fib.OutboundFilter(entry.Prefix, scope, src, explicitFaceID, hasExplicit, p.faces.LinkClass, p.faces.IsGG)
	for _, fe := range outbound {
		up := entry.seekOrCreatePFI(fe.FaceID, PFIUpstream)
		up.Expiry = now
		up.Renewed = now
	}

	return InsertResult{Entry: entry, Created: !existed, EarliestExpiry: entry.earliestExpiry(), TapFaces: tapFaces}
}

// SendInterestOrder is an instruction from Propagate to emit an Interest
// on a face; the ForwardingEngine/IoLoop performs the actual write.
type SendInterestOrder struct {
	FaceID        uint64
	Nonce         []byte
	LifetimeTicks int32
}

// PropagateResult reports what Propagate did, for the scheduler to react to.
type PropagateResult struct {
	Freed      bool
	NextExpiry core.WrappedTime
	ToSend     []SendInterestOrder
}

// Propagate implements spec.md §4.4's "Propagate event (fires for one PIT
// entry)": reap expired downstream PFIs, decide upstream sends via the
// ATTENTION/UPHUNGRY/INACTIVE dance and a strategy UPDATE callout, execute
// strategy-ordered sends, and free the entry once nothing is pending or
// outstanding.
func (p *PIT) Propagate(entry *InterestEntry, now core.WrappedTime) PropagateResult {
	var kept []*PFI
	var latest1, latest2 *PFI

	for _, pfi := range entry.pfis {
		if pfi.Flags&PFIDnstream == 0 {
			kept = append(kept, pfi)
			continue
		}
		if !pfi.Expiry.After(now) {
			p.strategy.Callout(OpExpDn, entry, pfi.FaceID)
			if pfi.Flags&PFIPending != 0 {
				p.faces.DecPendingInterests(pfi.FaceID)
			}
			continue
		}
		kept = append(kept, pfi)
		if latest1 == nil || pfi.Expiry.After(latest1.Expiry) {
			latest2 = latest1
			latest1 = pfi
		} else if latest2 == nil || pfi.Expiry.After(latest2.Expiry) {
			latest2 = pfi
		}
	}
	entry.pfis = kept

	anyAttention := false
	final := make([]*PFI, 0, len(entry.pfis))
	for _, pfi := range entry.pfis {
		if pfi.Flags&PFIUpstream == 0 {
			final = append(final, pfi)
			continue
		}
		if !p.faces.Exists(pfi.FaceID) || p.faces.NoSend(pfi.FaceID) {
			final = append(final, pfi)
			continue
		}
		if p.faces.IsDC(pfi.FaceID) && pfi.Flags&PFIDCFace == 0 {
			pfi.Expiry = pfi.Expiry.Add(core.DurationToTicks(60 * time.Millisecond))
			pfi.Flags |= PFIDCFace
		}
		if now.Add(1).Before(pfi.Expiry) {
			final = append(final, pfi)
			continue
		}
		if pfi.Flags&PFIUpending != 0 {
			pfi.Flags &^= PFIUpending
			p.faces.DecOutstandingInterests(pfi.FaceID)
			p.strategy.Callout(OpExpUp, entry, pfi.FaceID)
		}
		if pfi.Flags&PFISendUpst != 0 {
			final = append(final, pfi)
			continue
		}
		hasOtherDownstream := false
		for _, d := range entry.pfis {
			if d.Flags&PFIDnstream != 0 && d.FaceID != pfi.FaceID {
				hasOtherDownstream = true
				break
			}
		}
		switch {
		case hasOtherDownstream:
			pfi.Flags |= PFIAttention
			pfi.Flags &^= (PFIUphungry | PFIInactive)
			anyAttention = true
		case p.faces.NeverReceived(pfi.FaceID):
			pfi.Flags |= PFIInactive
		default:
			pfi.Flags |= PFIUphungry
		}
		final = append(final, pfi)
	}
	entry.pfis = final

	if anyAttention {
		p.strategy.Callout(OpUpdate, entry, NoFaceID)
		for _, pfi := range entry.pfis {
			pfi.Flags &^= PFIAttention
		}
	}

	var toSend []SendInterestOrder
	for _, pfi := range entry.pfis {
		if pfi.Flags&PFIUpstream == 0 || pfi.Flags&PFISendUpst == 0 {
			continue
		}
		var chosen *PFI
		switch {
		case latest1 != nil && latest1.FaceID != pfi.FaceID:
			chosen = latest1
		case latest2 != nil && latest2.FaceID != pfi.FaceID:
			chosen = latest2
		}
		if chosen == nil {
			pfi.Flags &^= (PFISendUpst | PFIUphungry)
			continue
		}
		pfi.Nonce = chosen.Nonce
		toSend = append(toSend, SendInterestOrder{
			FaceID:        pfi.FaceID,
			Nonce:         chosen.Nonce,
			LifetimeTicks: pfi.Expiry.Sub(pfi.Renewed),
		})
		pfi.Flags |= PFIUpending
		p.faces.IncOutstandingInterests(pfi.FaceID)
		pfi.Flags &^= (PFISendUpst | PFIUphungry)
	}

	anyPendingOrUpending := false
	for _, pfi := range entry.pfis {
		if pfi.Flags&(PFIPending|PFIUpending) != 0 {
			anyPendingOrUpending = true
			break
		}
	}
	if !anyPendingOrUpending {
		p.strategy.Callout(OpTimeout, entry, NoFaceID)
		p.freeEntry(entry)
		return PropagateResult{Freed: true, ToSend: toSend}
	}

	return PropagateResult{NextExpiry: entry.earliestExpiry(), ToSend: toSend}
}

// freeEntry restores every PFI's counter contribution before destroying the
// entry. The Propagate timeout path only ever calls this once
// anyPendingOrUpending is false, so it is a no-op there; Satisfy frees
// entries with PENDING downstreams and possibly UPENDING upstreams still
// set, and must not leak either counter (spec.md §3/§8's restored-on-free
// PIT invariant).
func (p *PIT) freeEntry(entry *InterestEntry) {
	for _, pfi := range entry.pfis {
		if pfi.Flags&PFIPending != 0 {
			p.faces.DecPendingInterests(pfi.FaceID)
		}
		if pfi.Flags&PFIUpending != 0 {
			p.faces.DecOutstandingInterests(pfi.FaceID)
		}
	}
	delete(p.byKey, string(entry.Key))
	if entry.Prefix != nil && entry.Prefix.interests != nil {
		delete(entry.Prefix.interests, entry)
	}
}

// SendContentOrder is an instruction from Satisfy to enqueue a Content
// Object on one downstream face's send queue.
type SendContentOrder struct {
	FaceID uint64
}

// Satisfy implements spec.md §4.4's Satisfaction algorithm: every PIT
// entry registered at an ancestor of the Content Object's name, whose
// selectors the object actually satisfies, is matched — each PENDING
// downstream gets a send order, the strategy sees SATISFIED once, and the
// entry is destroyed.
func (p *PIT) Satisfy(co *ccnb.ContentObject, arrivalFace uint64) []SendContentOrder {
	var orders []SendContentOrder
	fullName := co.FullName()

	node := p.fib.LongestMatch(co.Name)
	var matched []*InterestEntry
	for n := node; n != nil; n = n.parent {
		for entry := range n.interests {
			if entry.Interest.SelectorsMatch(fullName) {
				matched = append(matched, entry)
			}
		}
	}

	for _, entry := range matched {
		satisfiedAny := false
		for _, pfi := range entry.pfis {
			if pfi.Flags&PFIDnstream != 0 && pfi.Flags&PFIPending != 0 {
				orders = append(orders, SendContentOrder{FaceID: pfi.FaceID})
				satisfiedAny = true
			}
		}
		if satisfiedAny {
			p.strategy.Callout(OpSatisfied, entry, arrivalFace)
		}
		p.freeEntry(entry)
	}
	return orders
}

