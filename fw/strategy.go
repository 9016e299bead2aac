package fw

import (
	"fmt"
	"time"

	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/ccnd-project/ccnd/table"
)

// MulticastSuppressionTime bounds how often MulticastStrategy will
// re-forward an aggregated Interest on the same upstream face, ported from
// the teacher's fw/fw/multicast.go (MulticastSuppressionTime = 500ms).
const MulticastSuppressionTime = 500 * time.Millisecond

// StrategyInstance is attached to a name-prefix node (table.NamePrefixEntry)
// and decides, on each callout, which upstream PFIs get PFISendUpst set.
// This is the fw-side counterpart of table.StrategyCallout: StrategyEngine
// is the thing table.PIT actually calls, and it dispatches to whichever
// StrategyInstance the ancestor walk resolves (spec.md §4.9).
type StrategyInstance interface {
	Callout(eng *StrategyEngine, op table.StrategyOp, entry *table.InterestEntry, faceid uint64)
}

// StrategyClass is a named strategy constructor, analogous to the teacher's
// strategyInit/StrategyVersions registry (fw/fw/multicast.go's init()).
type StrategyClass struct {
	ID  string
	New func(params map[string]string) StrategyInstance
}

// StrategyEngine is the spec.md §4.9 dispatcher: it satisfies
// table.StrategyCallout exactly, so it plugs straight into table.NewPIT,
// and resolves each entry's effective strategy by walking its name-prefix
// node up toward the root looking for an attached StrategyInstance
// ("inherited downward via ancestor lookup").
type StrategyEngine struct {
	fib     *table.FIB
	faces   table.FaceView
	clock   *Scheduler
	classes map[string]*StrategyClass

	fallback   StrategyInstance
	fallbackID string
	// attachedID tracks which class.ID built the instance sitting at each
	// node, so getstrategy/removestrategy can echo it back (spec.md §6);
	// table.NamePrefixEntry.StrategyInstance itself is opaque to callers.
	attachedID map[*table.NamePrefixEntry]string
}

// NewStrategyEngine builds an engine with the built-in classes registered
// and DefaultStrategy attached at the FIB root, so every prefix inherits a
// strategy even before any setstrategy command runs.
func NewStrategyEngine(fib *table.FIB, faces table.FaceView, clock *Scheduler) *StrategyEngine {
	eng := &StrategyEngine{
		fib:        fib,
		faces:      faces,
		clock:      clock,
		classes:    make(map[string]*StrategyClass),
		attachedID: make(map[*table.NamePrefixEntry]string),
	}
	eng.Register(&StrategyClass{ID: "default", New: func(map[string]string) StrategyInstance { return &DefaultStrategy{} }})
	eng.Register(&StrategyClass{ID: "multicast", New: func(map[string]string) StrategyInstance { return &MulticastStrategy{} }})
	eng.fallback = &DefaultStrategy{}
	eng.fallbackID = "default"
	fib.Root().StrategyInstance = eng.fallback
	eng.attachedID[fib.Root()] = eng.fallbackID
	return eng
}

// Register adds a strategy class to the engine's name->constructor table,
// the set setstrategy's ccnx:/strategy/<name> argument is resolved against.
func (eng *StrategyEngine) Register(c *StrategyClass) { eng.classes[c.ID] = c }

// Attach implements the setstrategy management verb: construct a fresh
// instance of classID at node and fire INIT on it.
func (eng *StrategyEngine) Attach(node *table.NamePrefixEntry, classID string, params map[string]string) error {
	class, ok := eng.classes[classID]
	if !ok {
		return fmt.Errorf("fw: unknown strategy class %q", classID)
	}
	inst := class.New(params)
	node.StrategyInstance = inst
	node.StrategyState = nil
	eng.attachedID[node] = classID
	inst.Callout(eng, table.OpInit, nil, table.NoFaceID)
	return nil
}

// Detach implements removestrategy: node reverts to inheriting whatever its
// nearest ancestor (or the root default) provides.
func (eng *StrategyEngine) Detach(node *table.NamePrefixEntry) {
	node.StrategyInstance = nil
	node.StrategyState = nil
	delete(eng.attachedID, node)
}

// resolve walks node up to the root looking for the nearest attached
// instance, falling back to the engine-wide default (this only matters for
// nodes enrolled before NewStrategyEngine ran, which in practice is none,
// since the root always carries one from construction on).
func (eng *StrategyEngine) resolve(node *table.NamePrefixEntry) StrategyInstance {
	for n := node; n != nil; n = n.Parent() {
		if inst, ok := n.StrategyInstance.(StrategyInstance); ok && inst != nil {
			return inst
		}
	}
	return eng.fallback
}

// Inherited implements getstrategy's ancestor lookup: it returns the class
// ID attached at the nearest ancestor of node (node itself included) and
// that ancestor, so the mgmt reply can be "trimmed to effective prefix"
// (spec.md §6).
func (eng *StrategyEngine) Inherited(node *table.NamePrefixEntry) (classID string, effective *table.NamePrefixEntry) {
	for n := node; n != nil; n = n.Parent() {
		if id, ok := eng.attachedID[n]; ok {
			return id, n
		}
	}
	return eng.fallbackID, eng.fib.Root()
}

// Callout implements table.StrategyCallout, the PIT's sole entry point into
// strategy code.
func (eng *StrategyEngine) Callout(op table.StrategyOp, entry *table.InterestEntry, faceid uint64) {
	eng.resolve(entry.Prefix).Callout(eng, op, entry, faceid)
}

// eligibleUpstreams mirrors the FIB lookup table.PIT.Insert performs for its
// own upstream-PFI bookkeeping (spec.md §4.5's OutboundFilter), so a
// strategy's FIRST callout can decide, from the same candidate set, which
// faces actually get PFISendUpst. Run again from UPDATE's ATTENTION loop it
// would just repeat work already captured in entry.PFIs(), so UPDATE instead
// iterates the PFIs the PIT has already flagged.
func (eng *StrategyEngine) eligibleUpstreams(entry *table.InterestEntry, arrivalFace uint64) []table.ForwardingEntry {
	it := entry.Interest
	explicitFaceID, hasExplicit := it.FaceID.Get()
	src := table.SourceClass{GG: eng.faces.IsGG(arrivalFace), FaceID: arrivalFace, LinkClass: eng.faces.LinkClass(arrivalFace)}
	scope := it.Scope.GetOr(3)
	return eng.fib.OutboundFilter(entry.Prefix, scope, src, explicitFaceID, hasExplicit, eng.faces.LinkClass, eng.faces.IsGG)
}

// DefaultStrategy forwards to every eligible upstream (spec.md §4.9's
// baseline behavior): FIRST marks every candidate PFISendUpst, and UPDATE
// re-marks every PFI the Propagate ATTENTION pass flagged.
type DefaultStrategy struct{}

func (s *DefaultStrategy) Callout(eng *StrategyEngine, op table.StrategyOp, entry *table.InterestEntry, faceid uint64) {
	switch op {
	case table.OpFirst:
		for _, fe := range eng.eligibleUpstreams(entry, faceid) {
			pfi := entry.SeekUpstreamPFI(fe.FaceID)
			pfi.Flags |= table.PFISendUpst
		}
	case table.OpUpdate:
		for _, pfi := range entry.PFIs() {
			if pfi.Flags&table.PFIAttention != 0 {
				pfi.Flags |= table.PFISendUpst
			}
		}
	}
}

// MulticastStrategy is ported from the teacher's fw/fw/multicast.go: it
// forwards to every eligible upstream like DefaultStrategy, but suppresses
// a re-forward on any one face within MulticastSuppressionTime of that
// face's last recorded activity. The teacher scans pitEntry.OutRecords()
// for a recent differing-nonce send; table.PFI keeps no such history, so
// this uses the PFI's own Renewed timestamp (refreshed by table.PIT.Insert
// on every arrival that re-validates the candidate, not only on an actual
// send) as the nearest equivalent.
type MulticastStrategy struct{}

func (s *MulticastStrategy) Callout(eng *StrategyEngine, op table.StrategyOp, entry *table.InterestEntry, faceid uint64) {
	switch op {
	case table.OpFirst:
		for _, fe := range eng.eligibleUpstreams(entry, faceid) {
			s.maybeSend(eng, entry.SeekUpstreamPFI(fe.FaceID))
		}
	case table.OpUpdate:
		for _, pfi := range entry.PFIs() {
			if pfi.Flags&table.PFIAttention != 0 {
				s.maybeSend(eng, pfi)
			}
		}
	}
}

func (s *MulticastStrategy) maybeSend(eng *StrategyEngine, pfi *table.PFI) {
	now := eng.clock.Now()
	if pfi.Renewed != 0 && core.TicksToDuration(now.Sub(pfi.Renewed)) < MulticastSuppressionTime {
		return
	}
	pfi.Flags |= table.PFISendUpst
}
