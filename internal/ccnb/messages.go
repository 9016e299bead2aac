// Package ccnb defines the Interest and ContentObject message shapes the
// forwarding core operates on, plus a minimal TLV codec for them. spec.md §1
// puts the wire-format codec out of the forwarding core's scope ("provides
// parse/emit and digest computation"); this package is that external
// collaborator, given just enough substance to drive the pipeline described
// in spec.md §4.4 and §6.
package ccnb

import (
	"time"

	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/internal/optional"
)

// ChildSelector picks which of several matching children a CS lookup
// prefers (spec.md §4.3's "Child-selector leftmost/rightmost").
type ChildSelector int

const (
	ChildSelectorLeftmost ChildSelector = iota
	ChildSelectorRightmost
)

// Exclude models "an Exclude whose first element is Any followed
// immediately by a Component" (spec.md §4.3's fast-case seek optimization),
// plus the general explicit-component exclusion list used by the full CS
// predicate.
type Exclude struct {
	// AnyFirst is set when the first element of Exclude is the Any
	// wildcard, permitting the CS to restrict its seek key.
	AnyFirst bool
	// Components lists components explicitly excluded from a match,
	// in order. When AnyFirst is set, Components[0] is the component the
	// Any element is immediately followed by (the fast-case anchor).
	Components []ccnname.Component
}

// Excludes reports whether c is excluded by this selector.
func (e *Exclude) Excludes(c ccnname.Component) bool {
	if e == nil {
		return false
	}
	for _, x := range e.Components {
		if x.Typ == c.Typ && string(x.Val) == string(c.Val) {
			return true
		}
	}
	return false
}

// Interest is the forwarding core's in-memory Interest representation.
type Interest struct {
	Name                     ccnname.Name
	MinSuffixComponents      optional.Optional[int]
	MaxSuffixComponents      optional.Optional[int]
	PublisherPublicKeyDigest []byte
	Exclude                  *Exclude
	ChildSelector            ChildSelector
	MustBeFresh              bool // CS lookup "Interest forbids stale" (spec.md §4.3)
	Scope                    optional.Optional[int]
	InterestLifetime         time.Duration
	Nonce                    optional.Optional[uint32]
	// FaceID is the explicit nexthop override a GG source may carry
	// (spec.md §4.5's outbound filter table).
	FaceID optional.Optional[uint64]

	// Wire is the raw encoded bytes, if this Interest arrived off the
	// wire, kept so the key-suffix computation of spec.md §3/§4.4 can
	// operate on the exact bytes the peer sent.
	Wire []byte
}

// SelectorsMatch evaluates the CS predicate of spec.md §4.3 (minus
// staleness, which the CS checks itself before calling this) against a
// candidate name of the given component count.
func (it *Interest) SelectorsMatch(candidate ccnname.Name) bool {
	suffix := len(candidate) - len(it.Name)
	if suffix < 0 {
		return false
	}
	if min, ok := it.MinSuffixComponents.Get(); ok && suffix < min {
		return false
	}
	if max, ok := it.MaxSuffixComponents.Get(); ok && suffix > max {
		return false
	}
	if suffix == 0 && !it.Name.Equal(candidate) {
		return false
	}
	if it.Exclude != nil && suffix > 0 {
		if it.Exclude.Excludes(candidate[len(it.Name)]) {
			return false
		}
	}
	return true
}

// ContentObject is the forwarding core's in-memory Content Object
// representation.
type ContentObject struct {
	Name            ccnname.Name
	Content         []byte
	FreshnessPeriod time.Duration

	// Digest is the SHA-256 digest of the encoded Content Object, which
	// forms the implicit digest component of its full name (spec.md §3).
	Digest [32]byte

	// Wire is the raw encoded bytes, re-sent verbatim to downstreams.
	Wire []byte

	// SlowSend marks an object whose SendQueue class should prefer the
	// SLOW delay class over NORMAL on multicast faces (spec.md §4.6).
	SlowSend bool
}

// FullName returns Name with the implicit digest component appended, the
// key the Content Store indexes by (spec.md §3's CS invariant).
func (co *ContentObject) FullName() ccnname.Name {
	return co.Name.Append(ccnname.NewImplicitDigestComponent(co.Digest))
}
