package fw

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ccnd-project/ccnd/face"
	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/ccnd-project/ccnd/internal/optional"
	"github.com/ccnd-project/ccnd/table"
)

// Engine composes the tables into the forwarding core of spec.md §2:
// ProcessInterest/ProcessContent are the two pipelines that wire together
// the FaceTable, FIB, PIT, NonceTable, Content Store, StrategyEngine and
// per-face SendQueue. The IoLoop is the only caller of either method, so
// Engine itself does no locking of its own — the tables it holds already
// assume a single-goroutine owner (spec.md §4.7).
type Engine struct {
	Faces    *face.FaceTable
	FIB      *table.FIB
	PIT      *table.PIT
	Nonces   *table.NonceTable
	CS       *table.ContentStore
	Strategy *StrategyEngine
	Sched    *Scheduler
	Codec    ccnb.Codec

	// Local, if set, intercepts Interests matching its namespace before
	// the CS/PIT pipeline runs (spec.md §6's internal-client management
	// conversation). The mgmt package is the only implementation; Engine
	// depends only on this interface to avoid an import cycle.
	Local LocalHandler

	startedAt time.Time
}

// LocalHandler answers Interests the engine would otherwise forward
// upstream, used by the mgmt package's verb dispatch (spec.md §6).
type LocalHandler interface {
	Matches(name ccnname.Name) bool
	Handle(it *ccnb.Interest, arrivalFace uint64) *ccnb.ContentObject
}

// NewEngine builds an empty forwarding core with a Content Store of the
// given capacity and the default/multicast strategies registered at the
// FIB root (spec.md §4.9).
func NewEngine(csCapacity int) *Engine {
	faces := face.NewFaceTable()
	view := face.View{FT: faces}
	fib := table.NewFIB()
	nonces := table.NewNonceTable()
	sched := NewScheduler()
	strategy := NewStrategyEngine(fib, view, sched)
	pit := table.NewPIT(fib, nonces, strategy, view)
	cs := table.NewContentStore(csCapacity, view.Exists)

	return &Engine{
		Faces:     faces,
		FIB:       fib,
		PIT:       pit,
		Nonces:    nonces,
		CS:        cs,
		Strategy:  strategy,
		Sched:     sched,
		Codec:     ccnb.TLVCodec{},
		startedAt: time.Now(),
	}
}

// Now reads the daemon's wrapped-time clock (spec.md §4.7); the IoLoop
// advances this via e.Sched.Advance once per iteration.
func (e *Engine) Now() core.WrappedTime { return e.Sched.Now() }

func (e *Engine) staleTimeNow() table.StaleTime {
	return table.NewStaleTime(time.Since(e.startedAt))
}

// AddFace enrolls a new communication endpoint, wiring its SendQueue to
// this engine's Content Store and Scheduler (spec.md §4.2, §4.6).
func (e *Engine) AddFace(t face.Transport, flags face.Flag) (uint64, error) {
	f := &face.Face{Transport: t}
	f.SetFlag(flags)
	id, err := e.Faces.Enroll(f)
	if err != nil {
		return 0, err
	}
	f.InitQueues(e.CS, e.Sched)
	return id, nil
}

// RemoveFace destroys a face: drains its SendQueue, closes its transport,
// and invalidates every FIB forwarding entry that named it (spec.md §4.2's
// lazy-invalidation destruction contract, walked in table.FIB.RemoveFace).
func (e *Engine) RemoveFace(faceid uint64) {
	if f, ok := e.Faces.Lookup(faceid); ok {
		f.CloseQueues()
		if f.Transport != nil {
			_ = f.Transport.Close()
		}
	}
	e.Faces.Remove(faceid)
	e.FIB.RemoveFace(faceid)
}

func (e *Engine) genNonce() uint32 { return rand.Uint32() }

// ProcessFrame is the IoLoop's single entry point: it peeks the outer TLV
// type (spec.md §6's message framing) to route raw to ProcessInterest or
// ProcessContent without decoding twice.
func (e *Engine) ProcessFrame(raw []byte, arrivalFace uint64) error {
	outer, _, ok := ccnname.ParseTLNum(raw)
	if !ok {
		return fmt.Errorf("fw: empty or truncated frame from face %d", arrivalFace)
	}
	switch outer {
	case ccnb.TypeInterest:
		return e.ProcessInterest(raw, arrivalFace)
	case ccnb.TypeContentObject:
		return e.ProcessContent(raw, arrivalFace)
	default:
		return fmt.Errorf("fw: unknown outer message type %d from face %d", outer, arrivalFace)
	}
}

// ProcessInterest implements spec.md §2's Interest pipeline: a Content
// Store hit answers immediately; a miss aggregates into the PIT and runs
// an immediate Propagate to forward upstream.
func (e *Engine) ProcessInterest(raw []byte, arrivalFace uint64) error {
	it, err := e.Codec.DecodeInterest(raw)
	if err != nil {
		return err
	}
	e.noteArrival(arrivalFace, raw)

	if e.Local != nil && e.Local.Matches(it.Name) {
		if reply := e.Local.Handle(it, arrivalFace); reply != nil {
			e.deliverLocalReply(reply, arrivalFace)
		}
		return nil
	}

	if entry, ok := e.CS.Match(it, e.staleTimeNow()); ok {
		e.CS.IncRef(entry)
		e.enqueueContent(arrivalFace, entry, false)
		e.CS.DecRef(entry)
		return nil
	}

	res := e.PIT.Insert(it, arrivalFace, e.Now(), e.genNonce)
	for _, faceid := range res.TapFaces {
		e.forwardInterestCopy(it, faceid)
	}
	e.schedulePropagate(res.Entry)
	return nil
}

// ProcessContent implements spec.md §2's Content Object pipeline: cache
// the object, satisfy every matching PIT entry, and enqueue the object on
// each satisfied downstream's SendQueue.
func (e *Engine) ProcessContent(raw []byte, arrivalFace uint64) error {
	co, err := e.Codec.DecodeData(raw)
	if err != nil {
		return err
	}
	e.noteArrival(arrivalFace, raw)

	entry := e.CS.Insert(co, arrivalFace, e.staleTimeNow(), co.FreshnessPeriod)
	for _, order := range e.PIT.Satisfy(co, arrivalFace) {
		e.enqueueContent(order.FaceID, entry, co.SlowSend)
	}
	return nil
}

// deliverLocalReply sends a mgmt reply straight back to the requesting
// face, bypassing the Content Store and SendQueue: management replies are
// one-shot and addressed to a single known face (spec.md §6), not
// candidates for caching or fan-out.
func (e *Engine) deliverLocalReply(reply *ccnb.ContentObject, arrivalFace uint64) {
	f, ok := e.Faces.Lookup(arrivalFace)
	if !ok || f.Transport == nil {
		return
	}
	wire, err := e.Codec.EncodeData(reply)
	if err != nil {
		core.Log.Warn(f, "failed to encode local reply", "err", err)
		return
	}
	if err := f.Transport.Send(wire); err != nil {
		return
	}
	f.PacketsOut.Add(1)
	f.BytesOut.Add(uint64(len(wire)))
}

func (e *Engine) noteArrival(faceid uint64, raw []byte) {
	f, ok := e.Faces.Lookup(faceid)
	if !ok {
		return
	}
	f.MarkReceived()
	f.PacketsIn.Add(1)
	f.BytesIn.Add(uint64(len(raw)))
}

// schedulePropagate arms an immediate first Propagate pass for entry, which
// reschedules itself at whatever delay table.PIT.Propagate reports next
// (spec.md §4.4's Propagate event), until the entry is freed.
func (e *Engine) schedulePropagate(entry *table.InterestEntry) {
	e.Sched.ScheduleLabeled(0, "pit-propagate", func() time.Duration {
		return e.stepPropagate(entry)
	})
}

func (e *Engine) stepPropagate(entry *table.InterestEntry) time.Duration {
	now := e.Now()
	res := e.PIT.Propagate(entry, now)
	for _, order := range res.ToSend {
		e.sendInterestOrder(entry, order)
	}
	if res.Freed {
		return 0
	}
	delay := core.TicksToDuration(res.NextExpiry.Sub(now))
	if delay <= 0 {
		delay = time.Millisecond
	}
	return delay
}

// sendInterestOrder writes one upstream Interest, overriding the
// representative Interest's nonce/lifetime with the ones Propagate chose
// for this particular face (spec.md §4.4's "send the most recent nonce
// among the two newest downstream requesters").
func (e *Engine) sendInterestOrder(entry *table.InterestEntry, order table.SendInterestOrder) {
	f, ok := e.Faces.Lookup(order.FaceID)
	if !ok || f.Transport == nil {
		return
	}
	outgoing := *entry.Interest
	if len(order.Nonce) == 4 {
		outgoing.Nonce = optional.Some(binary.BigEndian.Uint32(order.Nonce))
	}
	outgoing.InterestLifetime = core.TicksToDuration(order.LifetimeTicks)
	wire, err := e.Codec.EncodeInterest(&outgoing)
	if err != nil {
		return
	}
	if err := f.Transport.Send(wire); err != nil {
		core.Log.Warn(f, "interest send failed", "err", err)
		return
	}
	f.PacketsOut.Add(1)
	f.BytesOut.Add(uint64(len(wire)))
}

// forwardInterestCopy implements spec.md §4.5's TAP forwarding: the wire
// bytes are resent verbatim, with no PIT state created on behalf of the
// observer.
func (e *Engine) forwardInterestCopy(it *ccnb.Interest, faceid uint64) {
	f, ok := e.Faces.Lookup(faceid)
	if !ok || f.Transport == nil {
		return
	}
	wire := it.Wire
	if wire == nil {
		var err error
		if wire, err = e.Codec.EncodeInterest(it); err != nil {
			return
		}
	}
	_ = f.Transport.Send(wire)
}

func (e *Engine) enqueueContent(faceid uint64, entry *table.ContentEntry, slowSend bool) {
	f, ok := e.Faces.Lookup(faceid)
	if !ok {
		return
	}
	class := face.DelayClassFor(f, slowSend)
	f.Enqueue(class, entry.Cookie)
}
