package table

import (
	"encoding/binary"
	"time"

	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/ccnname"
)

// MaxMatchProbes bounds the rightmost-child-selector walk of Match (spec.md
// §4.3's "probe budget MAX_MATCH_PROBES").
const MaxMatchProbes = 64

// StaleTime is a seconds-since-daemon-start counter, the granularity
// content freshness is tracked at (spec.md §3's content-entry "staletime").
// It wraps the same way core.WrappedTime does, just at 1 Hz rather than
// core.TickHz.
type StaleTime uint32

// NewStaleTime converts an elapsed duration into a StaleTime value.
func NewStaleTime(sinceStart time.Duration) StaleTime {
	return StaleTime(sinceStart / time.Second)
}

// Before reports whether s happened before other under wrapped arithmetic.
func (s StaleTime) Before(other StaleTime) bool {
	return int32(s-other) < 0
}

func (s StaleTime) key() []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(s))
	return b[:]
}

// ContentEntry is a cached Content Object plus the bookkeeping spec.md §3
// requires: arrival face, stable cookie, refcount, and staleness-ring
// linkage.
type ContentEntry struct {
	Name           ccnname.Name // full name, including implicit digest component
	Wire           []byte
	Size           int
	ArrivalFaceID  uint64
	Cookie         uint32
	ComponentCount int
	Refcount       int
	StaleTime      StaleTime

	ringPrev, ringNext *ContentEntry
}

// FaceAliveFunc reports whether a face is still live, used to resolve the
// freshen-time ArrivalFaceID decision (spec.md §9's pinned Open Question).
type FaceAliveFunc func(faceid uint64) bool

// ContentStore is the bounded cache of spec.md §4.3.
type ContentStore struct {
	tree       *NameTree[*ContentEntry]
	staleIndex *NameTree[*ContentEntry] // staletime bucket -> last entry with that staletime
	byCookie   map[uint32]*ContentEntry
	nextCookie uint32

	ringSentinel ContentEntry

	faceAlive FaceAliveFunc

	// SoftLimit triggers a tree Grow() call; Capacity is the point past
	// which reclaim is attempted; HardLimit is the point past which an
	// entry is evicted even while referenced (spec.md §4.3's "Capacity").
	SoftLimit int
	Capacity  int
	HardLimit int
}

// NewContentStore builds an empty store with the given capacity. SoftLimit
// and Capacity are set to capacity and HardLimit to twice capacity.
func NewContentStore(capacity int, faceAlive FaceAliveFunc) *ContentStore {
	cs := &ContentStore{
		tree:       New[*ContentEntry](ByteCompare, Callbacks[*ContentEntry]{}),
		staleIndex: New[*ContentEntry](ByteCompare, Callbacks[*ContentEntry]{}),
		byCookie:   make(map[uint32]*ContentEntry),
		faceAlive:  faceAlive,
		SoftLimit:  capacity,
		Capacity:   capacity,
		HardLimit:  capacity * 2,
	}
	cs.ringSentinel.ringNext = &cs.ringSentinel
	cs.ringSentinel.ringPrev = &cs.ringSentinel
	return cs
}

// Size is the number of entries currently indexed (spliced-out-but-still-
// referenced entries, resolvable only by cookie, are not counted).
func (cs *ContentStore) Size() int { return cs.tree.Size() }

func (cs *ContentStore) issueCookie(e *ContentEntry) uint32 {
	for {
		cs.nextCookie++
		if cs.nextCookie == 0 {
			continue
		}
		if _, taken := cs.byCookie[cs.nextCookie]; !taken {
			e.Cookie = cs.nextCookie
			cs.byCookie[cs.nextCookie] = e
			return cs.nextCookie
		}
	}
}

// FromCookie resolves a cookie to its entry, even if the entry has been
// spliced out of the name-tree index while still referenced by a send
// queue (spec.md §4.6's "queue stores content cookies, not pointers").
func (cs *ContentStore) FromCookie(cookie uint32) (*ContentEntry, bool) {
	e, ok := cs.byCookie[cookie]
	return e, ok
}

// IncRef and DecRef maintain the refcount invariant of spec.md §3: an
// entry is reclaimable by capacity enforcement only at refcount 0.
func (cs *ContentStore) IncRef(e *ContentEntry) { e.Refcount++ }

func (cs *ContentStore) DecRef(e *ContentEntry) {
	if e.Refcount > 0 {
		e.Refcount--
	}
}

func ringInsertAfter(anchor, e *ContentEntry) {
	if anchor.ringNext == nil {
		return // anchor was already spliced; caller already fell back
	}
	e.ringNext = anchor.ringNext
	e.ringPrev = anchor
	anchor.ringNext.ringPrev = e
	anchor.ringNext = e
}

func ringRemove(e *ContentEntry) {
	if e.ringPrev == nil {
		return
	}
	e.ringPrev.ringNext = e.ringNext
	e.ringNext.ringPrev = e.ringPrev
	e.ringPrev = nil
	e.ringNext = nil
}

// insertIntoStaleRing places e into the staleness ring in staletime order,
// using the secondary tree to find the tail of its staletime bucket in
// O(log n) instead of scanning the ring (spec.md §4.3's "auxiliary index").
func (cs *ContentStore) insertIntoStaleRing(e *ContentEntry) {
	key := e.StaleTime.key()
	anchor := &cs.ringSentinel
	if h, ok := cs.staleIndex.LookupExact(key); ok && h.Payload().ringNext != nil {
		anchor = h.Payload()
	} else if h, ok := cs.staleIndex.LookupLE(key); ok && h.Payload().ringNext != nil {
		anchor = h.Payload()
	}
	ringInsertAfter(anchor, e)

	if h, ok := cs.staleIndex.LookupExact(key); ok {
		cs.staleIndex.Remove(h)
	}
	cs.staleIndex.Enroll(key, e)
}

// spliceOut removes e from the main index and the staleness ring, but
// leaves it resolvable by cookie for as long as something still refers to
// it (send queues do, by cookie).
func (cs *ContentStore) spliceOut(e *ContentEntry) {
	if h, ok := cs.tree.LookupExact(e.Name.Flat()); ok {
		cs.tree.Remove(h)
	}
	ringRemove(e)
}

// reclaim fully frees e: splices it out and drops the cookie mapping.
// Callers must only do this at refcount 0, except for the hard-limit
// forced-eviction path spec.md §4.3 explicitly allows.
func (cs *ContentStore) reclaim(e *ContentEntry) {
	cs.spliceOut(e)
	delete(cs.byCookie, e.Cookie)
}

// Insert adds or freshens the cached copy of a Content Object, enforcing
// capacity afterward. now is the current seconds-since-daemon-start value
// (spec.md §3/§4.3 define staletime as "seconds since daemon start," not a
// bare freshness duration), so the entry's StaleTime is computed relative
// to when it actually arrives, not to epoch zero.
func (cs *ContentStore) Insert(co *ccnb.ContentObject, arrivalFaceID uint64, now StaleTime, staleBound time.Duration) *ContentEntry {
	fullName := co.FullName()
	key := fullName.Flat()

	if h, ok := cs.tree.LookupExact(key); ok {
		return cs.freshen(h.Payload(), co, arrivalFaceID, now, staleBound)
	}

	e := &ContentEntry{
		Name:           fullName,
		Wire:           co.Wire,
		Size:           len(co.Wire),
		ArrivalFaceID:  arrivalFaceID,
		ComponentCount: len(fullName),
		StaleTime:      cs.staleTimeFor(now, staleBound),
	}
	cs.issueCookie(e)

	if cs.Size() >= cs.SoftLimit {
		cs.tree.Grow()
	}
	cs.tree.Enroll(key, e)
	cs.insertIntoStaleRing(e)
	cs.enforceCapacity()
	return e
}

// staleTimeFor converts the already-clamped freshness bound into an
// absolute staletime by offsetting it from now, the current
// seconds-since-start value — matching what Match compares StaleTime
// against (spec.md §4.3).
func (cs *ContentStore) staleTimeFor(now StaleTime, staleBound time.Duration) StaleTime {
	return now + StaleTime(staleBound/time.Second)
}

// freshen updates an existing entry's wire bytes and staleness, applying
// the pinned Open Question from spec.md §9: the arrival face is only
// overwritten if the previous arrival face has vanished.
func (cs *ContentStore) freshen(e *ContentEntry, co *ccnb.ContentObject, arrivalFaceID uint64, now StaleTime, staleBound time.Duration) *ContentEntry {
	e.Wire = co.Wire
	e.Size = len(co.Wire)
	if cs.faceAlive == nil || !cs.faceAlive(e.ArrivalFaceID) {
		e.ArrivalFaceID = arrivalFaceID
	}
	ringRemove(e)
	e.StaleTime = cs.staleTimeFor(now, staleBound)
	cs.insertIntoStaleRing(e)
	return e
}

// enforceCapacity implements spec.md §4.3's three-tier reclaim policy.
func (cs *ContentStore) enforceCapacity() {
	for cs.Size() > cs.Capacity {
		if cs.reclaimOldestUnreferenced() {
			continue
		}
		cs.markOldestStaleNow()
		if cs.Size() > cs.HardLimit {
			if oldest := cs.ringSentinel.ringNext; oldest != &cs.ringSentinel {
				cs.reclaim(oldest)
				continue
			}
		}
		break
	}
}

func (cs *ContentStore) reclaimOldestUnreferenced() bool {
	probes := 0
	for e := cs.ringSentinel.ringNext; e != &cs.ringSentinel && probes < 30; e = e.ringNext {
		probes++
		if e.Refcount == 0 {
			cs.reclaim(e)
			return true
		}
	}
	return false
}

func (cs *ContentStore) markOldestStaleNow() {
	if oldest := cs.ringSentinel.ringNext; oldest != &cs.ringSentinel {
		oldest.StaleTime = 0
	}
}

// MatchResult is a CS hit.
type MatchResult struct {
	Entry *ContentEntry
}

// Match implements the Content Store lookup algorithm of spec.md §4.3: a
// fast-case seek past an Exclude-Any anchor, then a bounded forward walk
// applying staleness eviction and the full selector predicate, honoring
// the leftmost/rightmost child selector.
func (cs *ContentStore) Match(it *ccnb.Interest, now StaleTime) (*ContentEntry, bool) {
	prefix := it.Name.Flat()
	seekKey := prefix
	if it.Exclude != nil && it.Exclude.AnyFirst && len(it.Exclude.Components) > 0 {
		seekKey = append(append([]byte{}, prefix...), it.Exclude.Components[0].Bytes()...)
	}

	cur, ok := cs.tree.LookupGE(seekKey)
	if !ok {
		return nil, false
	}

	var lastMatch *ContentEntry
	probes := 0
	for probes < MaxMatchProbes {
		probes++
		e := cur.Payload()

		rel := it.Name.Compare(e.Name)
		if rel != ccnname.RelEqual && rel != ccnname.RelStrictPrefix {
			break // neither an extension of the prefix nor equal: stop
		}

		if it.MustBeFresh && e.StaleTime.Before(now) {
			wasZero := e.Refcount == 0
			cs.spliceOut(e)
			if wasZero {
				delete(cs.byCookie, e.Cookie)
			}
			next, ok := cs.tree.LookupGE(e.Name.Flat())
			if !ok {
				break
			}
			cur = next
			continue
		}

		if it.SelectorsMatch(e.Name) {
			if it.ChildSelector == ccnb.ChildSelectorLeftmost {
				return e, true
			}
			lastMatch = e
			// Advance past every descendant of this child: seek the
			// smallest key greater than "prefix+child+sentinel byte".
			if len(e.Name) <= len(it.Name) {
				break
			}
			childKey := append(append([]byte{}, prefix...), e.Name[len(it.Name)].Bytes()...)
			childKey = append(childKey, 0x00)
			next, ok := cs.tree.LookupGE(childKey)
			if !ok {
				break
			}
			cur = next
			continue
		}

		next, ok := cs.tree.Next(cur)
		if !ok {
			break
		}
		cur = next
	}

	if lastMatch != nil {
		return lastMatch, true
	}
	return nil, false
}
