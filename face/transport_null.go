package face

import "net"

// runLoop is satisfied by every concrete transport; the IoLoop starts one
// goroutine per face calling it after enrollment (SPEC_FULL §5), so table
// mutation stays confined to the single forwarding goroutine that drains
// the resulting Frame channel.
type runLoop interface {
	runReceive(faceid uint64, sink chan<- Frame)
}

// StartReceiving launches t's read goroutine, if it has one, feeding
// parsed frames to sink tagged with faceid. The composition root
// (fw.IoLoop.AddFace) calls this once per face right after enrollment;
// transports with no receive loop of their own (NullTransport, test
// doubles) are silently skipped.
func StartReceiving(t Transport, faceid uint64, sink chan<- Frame) {
	if rl, ok := t.(runLoop); ok {
		go rl.runReceive(faceid, sink)
	}
}

// NullTransport discards everything sent to it and never produces a
// frame; used for the always-registered local "null" face management
// verbs can point misconfigured prefixes at, grounded on the teacher's
// NullTransport (fw/face/null-transport.go).
type NullTransport struct{}

func (NullTransport) Send([]byte) error    { return nil }
func (NullTransport) Close() error         { return nil }
func (NullTransport) RemoteAddr() net.Addr { return nil }
func (NullTransport) runReceive(uint64, chan<- Frame) {}

func (NullTransport) String() string { return "null-transport" }
