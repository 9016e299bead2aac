package table

import (
	"github.com/ccnd-project/ccnd/internal/ccnname"
)

// ForwardFlag bits on a per-prefix forwarding record (spec.md §4.5).
type ForwardFlag uint32

const (
	FlagActive ForwardFlag = 1 << iota
	FlagChildInherit
	FlagCapture
	FlagTap
	FlagLast
	FlagLocal
)

// ForwardingEntry is one (faceid, flags, expires) record registered at a
// name-prefix node.
type ForwardingEntry struct {
	FaceID  uint64
	Flags   ForwardFlag
	Expires uint32 // wrapped tick; 0 means "no expiry" (PERMANENT face registration)
	// Refreshed is cleared by the FIB age-out sweep (spec.md §4.8) and set
	// whenever prefixreg/selfreg refreshes this entry.
	Refreshed bool
}

// NamePrefixEntry is a node of the FIB/PIT index tree (spec.md §3's
// "name-prefix entry"): parent pointer, forwarding records, and the
// materialized forward_to/tap caches.
type NamePrefixEntry struct {
	Name ccnname.Name

	parent   *NamePrefixEntry
	children map[string]*NamePrefixEntry

	Forwarding []*ForwardingEntry

	forwardTo      []ForwardingEntry
	tap            []ForwardingEntry
	fgen           uint64
	namespaceFlags ForwardFlag

	// StrategyInstance and StrategyState are opaque to the FIB; the
	// StrategyEngine owns their contents (spec.md §4.9).
	StrategyInstance any
	StrategyState    any

	// PIT interest entries whose longest matching prefix is this node.
	// The PIT package appends/removes through PinInterest/UnpinInterest.
	interests map[*InterestEntry]struct{}
}

// FIB is the per-prefix forwarding table, keyed by the same flat-name
// bytes the NameTree uses elsewhere, sharing the ancestor-walk trie shape
// spec.md §9's design notes recommend in place of the source's
// hash-table-per-prefix.
type FIB struct {
	root *NamePrefixEntry
	// ForwardToGen is bumped whenever any node's Forwarding list changes;
	// a node's cached forward_to is stale whenever node.fgen != this.
	ForwardToGen uint64
}

// NewFIB builds an empty FIB with just a root node for "/" .
func NewFIB() *FIB {
	return &FIB{root: &NamePrefixEntry{children: make(map[string]*NamePrefixEntry)}}
}

// Root returns the entry for the empty prefix, the ancestor of everything.
func (f *FIB) Root() *NamePrefixEntry { return f.root }

// Parent returns node's parent, or nil at the root. The StrategyEngine
// uses this for the ancestor walk that implements strategy inheritance
// (spec.md §4.9: "attached to a name-prefix node and inherited downward
// via ancestor lookup").
func (n *NamePrefixEntry) Parent() *NamePrefixEntry { return n.parent }

func componentKey(c ccnname.Component) string {
	return string(c.Bytes())
}

// Enroll returns the name-prefix node for name, creating intermediate
// nodes as needed (this is the FIB/PIT index tree of spec.md §3, not the
// CS's flat-byte NameTree).
func (f *FIB) Enroll(name ccnname.Name) *NamePrefixEntry {
	n := f.root
	for i, c := range name {
		key := componentKey(c)
		child, ok := n.children[key]
		if !ok {
			child = &NamePrefixEntry{
				Name:     name[:i+1].Clone(),
				parent:   n,
				children: make(map[string]*NamePrefixEntry),
			}
			n.children[key] = child
		}
		n = child
	}
	return n
}

// LongestMatch walks from the root following name's components as far as
// nodes exist, returning the deepest node reached (the longest registered
// prefix of name, which may be the root if nothing else matches).
func (f *FIB) LongestMatch(name ccnname.Name) *NamePrefixEntry {
	n := f.root
	for _, c := range name {
		child, ok := n.children[componentKey(c)]
		if !ok {
			break
		}
		n = child
	}
	return n
}

// Lookup returns the exact node for name, if one has been enrolled.
func (f *FIB) Lookup(name ccnname.Name) (*NamePrefixEntry, bool) {
	n := f.root
	for _, c := range name {
		child, ok := n.children[componentKey(c)]
		if !ok {
			return nil, false
		}
		n = child
	}
	return n, true
}

// AddForwarding upserts a (faceid, flags) forwarding record at the node
// for prefix, refreshing its expiry, and bumps ForwardToGen so every
// node's cached forward_to is invalidated.
func (f *FIB) AddForwarding(prefix ccnname.Name, faceid uint64, flags ForwardFlag, expires uint32) *ForwardingEntry {
	node := f.Enroll(prefix)
	for _, fe := range node.Forwarding {
		if fe.FaceID == faceid {
			fe.Flags = flags
			fe.Expires = expires
			fe.Refreshed = true
			f.ForwardToGen++
			return fe
		}
	}
	fe := &ForwardingEntry{FaceID: faceid, Flags: flags, Expires: expires, Refreshed: true}
	node.Forwarding = append(node.Forwarding, fe)
	f.ForwardToGen++
	return fe
}

// RemoveForwarding deletes the forwarding record for faceid at prefix's
// node, if any, returning whether one was found.
func (f *FIB) RemoveForwarding(prefix ccnname.Name, faceid uint64) bool {
	node, ok := f.Lookup(prefix)
	if !ok {
		return false
	}
	for i, fe := range node.Forwarding {
		if fe.FaceID == faceid {
			node.Forwarding = append(node.Forwarding[:i], node.Forwarding[i+1:]...)
			f.ForwardToGen++
			return true
		}
	}
	return false
}

// RemoveFace invalidates every forwarding entry referring to faceid,
// walking the whole trie. FaceTable destruction calls this lazily rather
// than tracking back-references (spec.md §4.2's destruction contract).
func (f *FIB) RemoveFace(faceid uint64) {
	var walk func(n *NamePrefixEntry)
	walk = func(n *NamePrefixEntry) {
		kept := n.Forwarding[:0]
		for _, fe := range n.Forwarding {
			if fe.FaceID != faceid {
				kept = append(kept, fe)
			}
		}
		if len(kept) != len(n.Forwarding) {
			f.ForwardToGen++
		}
		n.Forwarding = kept
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(f.root)
}

// rebuild recomputes node's forward_to/tap caches by walking from node up
// through every ancestor, per spec.md §4.5's capture-sensitive rule.
func (f *FIB) rebuild(node *NamePrefixEntry) {
	var forwardTo, tap []ForwardingEntry
	var last []ForwardingEntry
	var namespaceFlags ForwardFlag
	captureSeen := false

	chain := []*NamePrefixEntry{}
	for n := node; n != nil; n = n.parent {
		chain = append(chain, n)
	}

	// Walk from node upward (chain[0]==node) so a descendant's CAPTURE
	// shadows its ancestors, matching "no descendant on the path has set
	// CAPTURE" (tracked here as captureSeen, set the moment we pass a
	// node carrying it, which then vetoes every node further up).
	for i, n := range chain {
		isOrigin := i == 0
		vetoed := captureSeen && !isOrigin
		for _, fe := range n.Forwarding {
			namespaceFlags |= fe.Flags
			if fe.Flags&FlagCapture != 0 {
				captureSeen = true
			}
		}
		if vetoed {
			continue
		}
		for _, fe := range n.Forwarding {
			if fe.Flags&FlagActive == 0 {
				continue
			}
			if !isOrigin && fe.Flags&FlagChildInherit == 0 {
				continue
			}
			entry := *fe
			switch {
			case entry.Flags&FlagTap != 0:
				tap = append(tap, entry)
			case entry.Flags&FlagLast != 0:
				last = append(last, entry)
			default:
				forwardTo = append(forwardTo, entry)
			}
		}
	}

	node.forwardTo = append(forwardTo, last...)
	node.tap = tap
	node.namespaceFlags = namespaceFlags
	node.fgen = f.ForwardToGen
}

// ForwardTo returns node's materialized forward_to list, rebuilding it
// first if the global generation counter has advanced since its last
// build (spec.md §4.5).
func (f *FIB) ForwardTo(node *NamePrefixEntry) []ForwardingEntry {
	if node.fgen != f.ForwardToGen {
		f.rebuild(node)
	}
	return node.forwardTo
}

// Tap returns node's observation-only tap list, rebuilding if stale.
func (f *FIB) Tap(node *NamePrefixEntry) []ForwardingEntry {
	if node.fgen != f.ForwardToGen {
		f.rebuild(node)
	}
	return node.tap
}

// IsLocal reports whether LOCAL appears anywhere on node's path.
func (f *FIB) IsLocal(node *NamePrefixEntry) bool {
	if node.fgen != f.ForwardToGen {
		f.rebuild(node)
	}
	return node.namespaceFlags&FlagLocal != 0
}

// SourceClass distinguishes the source face's standing for the outbound
// filter table of spec.md §4.5.
type SourceClass struct {
	GG        bool
	FaceID    uint64
	LinkClass int // e.g. interface index or transport kind, for the scope=2 "not same link class" rule
}

// OutboundFilter implements the table of spec.md §4.5: given the resolved
// node for an Interest and its scope/source, returns the faces eligible to
// receive it.
func (f *FIB) OutboundFilter(node *NamePrefixEntry, scope int, src SourceClass, explicitFaceID uint64, hasExplicitFaceID bool, linkClassOf func(faceid uint64) int, isGG func(faceid uint64) bool) []ForwardingEntry {
	// Walk up until a node with any forwarding records is found.
	for node != nil && len(node.Forwarding) == 0 && node.parent != nil {
		node = node.parent
	}
	if node == nil {
		return nil
	}
	if scope == 0 {
		return nil
	}
	if src.GG && hasExplicitFaceID {
		for _, fe := range f.ForwardTo(node) {
			if fe.FaceID == explicitFaceID {
				return []ForwardingEntry{fe}
			}
		}
		return nil
	}

	local := f.IsLocal(node)
	var out []ForwardingEntry
	for _, fe := range f.ForwardTo(node) {
		if fe.FaceID == src.FaceID {
			continue
		}
		switch {
		case local && src.GG:
			out = append(out, fe)
		case local && !src.GG:
			// drop: nonlocal interest to a local prefix
		case !local && scope == 1:
			// spec.md §4.5: scope=1 restricts the *outbound* face to GG, not
			// the source — forward only to targets that are themselves GG.
			if isGG == nil || isGG(fe.FaceID) {
				out = append(out, fe)
			}
		case !local && scope == 2:
			if linkClassOf == nil || linkClassOf(fe.FaceID) != src.LinkClass {
				out = append(out, fe)
			}
		default: // !local && scope >= 3
			out = append(out, fe)
		}
	}
	return out
}
