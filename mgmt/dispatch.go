package mgmt

import (
	"fmt"
	"net"
	"time"

	"github.com/ccnd-project/ccnd/face"
	"github.com/ccnd-project/ccnd/fw"
	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/ccnd-project/ccnd/table"
)

// LocalPrefix is the namespace every management Interest must fall under
// (spec.md §6: "a trusted internal client face ... presents Interests
// whose ... name encodes one of the verbs"), grounded on the teacher's
// fw/mgmt.LOCAL_PREFIX guard.
var LocalPrefix = mustLocalPrefix()

func mustLocalPrefix() ccnname.Name {
	n, err := ccnname.NameFromStr("/localhost/ccnd")
	if err != nil {
		panic(err)
	}
	return n
}

// Default lifetime clamp for prefixreg/selfreg, in seconds (spec.md §6).
const (
	minDefaultLifetimeSec = 300
	maxDefaultLifetimeSec = 2_000_000_000
)

// Thread dispatches management verbs against an Engine, the fw.LocalHandler
// the composition root wires into Engine.Local. It collapses the teacher's
// per-verb-family Module registration (fw/mgmt.FIBModule, .FaceModule, ...)
// into a single switch, since this daemon's verb surface (spec.md §6's one
// table) is small enough not to need per-module plugins.
type Thread struct {
	Engine *fw.Engine
	Loop   *fw.IoLoop
}

// NewThread builds a dispatcher bound to engine and loop; loop.AddFace/
// RemoveFace are how newface/destroyface actually start and stop I/O.
func NewThread(engine *fw.Engine, loop *fw.IoLoop) *Thread {
	return &Thread{Engine: engine, Loop: loop}
}

func (t *Thread) String() string { return "mgmt" }

// Matches implements fw.LocalHandler.
func (t *Thread) Matches(name ccnname.Name) bool {
	return LocalPrefix.IsPrefix(name)
}

// Verb splits a management Interest's name into its verb component and
// reports whether name actually falls under LocalPrefix with both a verb
// and a body component present.
func Verb(name ccnname.Name) (verb string, body []byte, ok bool) {
	if !LocalPrefix.IsPrefix(name) || len(name) < len(LocalPrefix)+2 {
		return "", nil, false
	}
	return string(name[len(LocalPrefix)].Val), name[len(LocalPrefix)+1].Val, true
}

// Handle implements fw.LocalHandler: it dispatches one management Interest
// arriving on arrivalFace, replying with an echo on success or a
// NACK-coded StatusResponse on failure (spec.md §6). Called from
// Engine.ProcessInterest on the IoLoop goroutine, so no locking is needed
// (spec.md §5's single-owner model).
func (t *Thread) Handle(it *ccnb.Interest, arrivalFace uint64) *ccnb.ContentObject {
	verb, body, ok := Verb(it.Name)
	if !ok {
		return t.nack(it, core.AdminSyntaxError, "malformed management request")
	}

	gg := t.hasFlag(arrivalFace, face.FlagGG)
	regOk := gg || t.hasFlag(arrivalFace, face.FlagRegOk)

	switch verb {
	case "newface":
		if !gg {
			return t.nack(it, core.AdminNotAuthorized, "newface requires GG")
		}
		return t.newFace(it, body)
	case "destroyface":
		if !gg {
			return t.nack(it, core.AdminNotAuthorized, "destroyface requires GG")
		}
		return t.destroyFace(it, body)
	case "prefixreg":
		if !regOk {
			return t.nack(it, core.AdminNotAuthorized, "prefixreg requires GG or REGOK")
		}
		return t.prefixReg(it, body, arrivalFace, false)
	case "selfreg":
		if !regOk {
			return t.nack(it, core.AdminNotAuthorized, "selfreg requires GG or REGOK")
		}
		return t.prefixReg(it, body, arrivalFace, true)
	case "unreg":
		if !gg {
			return t.nack(it, core.AdminNotAuthorized, "unreg requires GG")
		}
		return t.unreg(it, body)
	case "setstrategy":
		if !regOk {
			return t.nack(it, core.AdminNotAuthorized, "setstrategy requires GG or REGOK")
		}
		return t.setStrategy(it, body)
	case "getstrategy":
		if !regOk {
			return t.nack(it, core.AdminNotAuthorized, "getstrategy requires GG or REGOK")
		}
		return t.getStrategy(it, body)
	case "removestrategy":
		if !regOk {
			return t.nack(it, core.AdminNotAuthorized, "removestrategy requires GG or REGOK")
		}
		return t.removeStrategy(it, body)
	default:
		return t.nack(it, core.AdminSyntaxError, "unknown verb "+verb)
	}
}

func (t *Thread) hasFlag(faceid uint64, flag face.Flag) bool {
	f, ok := t.Engine.Faces.Lookup(faceid)
	return ok && f.HasFlag(flag)
}

func (t *Thread) reply(it *ccnb.Interest, body []byte) *ccnb.ContentObject {
	return &ccnb.ContentObject{Name: it.Name, Content: body, FreshnessPeriod: time.Second}
}

func (t *Thread) nack(it *ccnb.Interest, code int, text string) *ccnb.ContentObject {
	core.Log.Warn(t, "mgmt request refused", "code", code, "text", text)
	resp := &StatusResponse{Code: code, Text: text}
	return t.reply(it, resp.Encode())
}

func (t *Thread) newFace(it *ccnb.Interest, body []byte) *ccnb.ContentObject {
	fi := DecodeFaceInstance(body)
	if fi.Address == "" || fi.Port == 0 {
		return t.nack(it, core.AdminParameterError, "newface requires address and port")
	}
	addr := fmt.Sprintf("%s:%d", fi.Address, fi.Port)

	if ip := net.ParseIP(fi.Address); ip != nil && ip.IsMulticast() {
		return t.newMulticastFace(it, fi, addr)
	}

	var tr face.Transport
	var err error
	switch fi.IPProto {
	case "tcp", "":
		tr, err = face.DialTCP(addr)
	case "udp":
		tr, err = face.DialUnicastUDP(addr)
	default:
		return t.nack(it, core.AdminParameterError, "unsupported proto "+fi.IPProto)
	}
	if err != nil {
		return t.nack(it, core.AdminOperationFailed, err.Error())
	}

	id, err := t.Loop.AddFace(tr, face.FlagPermanent)
	if err != nil {
		_ = tr.Close()
		return t.nack(it, core.AdminOperationFailed, err.Error())
	}

	core.Log.Info(t, "created face", "faceid", id, "addr", addr)
	fi.FaceID = id
	return t.reply(it, fi.Encode())
}

// newMulticastFace handles the "multicast group if address is multicast"
// branch of the newface verb (spec.md §6), reporting setup failures with
// the dedicated AdminMulticastSetupError code.
func (t *Thread) newMulticastFace(it *ccnb.Interest, fi *FaceInstance, addr string) *ccnb.ContentObject {
	group, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return t.nack(it, core.AdminMulticastSetupError, err.Error())
	}
	tr, err := face.NewMulticastUDPTransport(nil, group)
	if err != nil {
		return t.nack(it, core.AdminMulticastSetupError, err.Error())
	}

	id, err := t.Loop.AddFace(tr, face.FlagPermanent|face.FlagMcast)
	if err != nil {
		_ = tr.Close()
		return t.nack(it, core.AdminOperationFailed, err.Error())
	}

	core.Log.Info(t, "created multicast face", "faceid", id, "group", addr)
	fi.FaceID = id
	return t.reply(it, fi.Encode())
}

func (t *Thread) destroyFace(it *ccnb.Interest, body []byte) *ccnb.ContentObject {
	fi := DecodeFaceInstance(body)
	if fi.FaceID == 0 {
		return t.nack(it, core.AdminParameterError, "destroyface requires faceid")
	}
	if _, ok := t.Engine.Faces.Lookup(fi.FaceID); !ok {
		return t.nack(it, core.AdminOperationFailed, "face does not exist")
	}

	t.Loop.RemoveFace(fi.FaceID)
	core.Log.Info(t, "destroyed face", "faceid", fi.FaceID)
	return t.reply(it, fi.Encode())
}

func (t *Thread) prefixReg(it *ccnb.Interest, body []byte, arrivalFace uint64, self bool) *ccnb.ContentObject {
	fe, err := DecodeForwardingEntry(body)
	if err != nil {
		return t.nack(it, core.AdminSyntaxError, err.Error())
	}

	faceID := fe.FaceID
	if self {
		faceID = arrivalFace
	}
	if faceID == 0 {
		return t.nack(it, core.AdminParameterError, "prefixreg requires faceid")
	}
	if _, ok := t.Engine.Faces.Lookup(faceID); !ok {
		return t.nack(it, core.AdminOperationFailed, "face does not exist")
	}

	lifetime := fe.Lifetime
	switch {
	case lifetime < minDefaultLifetimeSec:
		lifetime = minDefaultLifetimeSec
	case lifetime > maxDefaultLifetimeSec:
		lifetime = maxDefaultLifetimeSec
	}
	flags := fe.Flags
	if flags == 0 {
		flags = table.FlagActive | table.FlagChildInherit
	}
	expires := uint32(t.Engine.Now().Add(core.DurationToTicks(time.Duration(lifetime) * time.Second)))

	t.Engine.FIB.AddForwarding(fe.Prefix, faceID, flags, expires)
	core.Log.Info(t, "registered prefix", "prefix", fe.Prefix, "faceid", faceID, "cost", 0)

	fe.FaceID = faceID
	fe.Lifetime = lifetime
	fe.Flags = flags
	return t.reply(it, fe.Encode())
}

func (t *Thread) unreg(it *ccnb.Interest, body []byte) *ccnb.ContentObject {
	fe, err := DecodeForwardingEntry(body)
	if err != nil {
		return t.nack(it, core.AdminSyntaxError, err.Error())
	}
	if fe.FaceID == 0 {
		return t.nack(it, core.AdminParameterError, "unreg requires faceid")
	}
	if !t.Engine.FIB.RemoveForwarding(fe.Prefix, fe.FaceID) {
		return t.nack(it, core.AdminOperationFailed, "no such forwarding entry")
	}

	core.Log.Info(t, "unregistered prefix", "prefix", fe.Prefix, "faceid", fe.FaceID)
	return t.reply(it, fe.Encode())
}

func (t *Thread) setStrategy(it *ccnb.Interest, body []byte) *ccnb.ContentObject {
	sel, err := DecodeStrategySelection(body)
	if err != nil {
		return t.nack(it, core.AdminSyntaxError, err.Error())
	}
	if sel.ID == "" {
		return t.nack(it, core.AdminParameterError, "setstrategy requires id")
	}

	node := t.Engine.FIB.Enroll(sel.Prefix)
	if err := t.Engine.Strategy.Attach(node, sel.ID, sel.Params); err != nil {
		return t.nack(it, core.AdminParameterError, err.Error())
	}

	core.Log.Info(t, "attached strategy", "prefix", sel.Prefix, "id", sel.ID)
	return t.reply(it, sel.Encode())
}

func (t *Thread) getStrategy(it *ccnb.Interest, body []byte) *ccnb.ContentObject {
	sel, err := DecodeStrategySelection(body)
	if err != nil {
		return t.nack(it, core.AdminSyntaxError, err.Error())
	}
	return t.reply(it, t.inheritedSelection(sel.Prefix).Encode())
}

func (t *Thread) removeStrategy(it *ccnb.Interest, body []byte) *ccnb.ContentObject {
	sel, err := DecodeStrategySelection(body)
	if err != nil {
		return t.nack(it, core.AdminSyntaxError, err.Error())
	}
	if node, ok := t.Engine.FIB.Lookup(sel.Prefix); ok {
		t.Engine.Strategy.Detach(node)
		core.Log.Info(t, "detached strategy", "prefix", sel.Prefix)
	}
	return t.reply(it, t.inheritedSelection(sel.Prefix).Encode())
}

// inheritedSelection resolves the effective strategy for prefix, trimming
// the echoed prefix to the ancestor it is actually attached at (spec.md
// §6: "StrategySelection echo (trimmed to effective prefix)").
func (t *Thread) inheritedSelection(prefix ccnname.Name) *StrategySelection {
	node := t.Engine.FIB.LongestMatch(prefix)
	id, effective := t.Engine.Strategy.Inherited(node)
	return &StrategySelection{Prefix: effective.Name, ID: id}
}
