package face

import (
	"fmt"
	"net"

	"github.com/ccnd-project/ccnd/internal/core"
)

// UnicastUDPTransport is a point-to-point unicast UDP transport (spec.md
// §6's "UDP wildcard" listener, unicast side), grounded on the teacher's
// UnicastUDPTransport. A UDP datagram already carries exactly one CCN
// message, so no stream framing is needed on receive.
type UnicastUDPTransport struct {
	conn *net.UDPConn
}

// DialUnicastUDP connects to a remote UDP peer.
func DialUnicastUDP(addr string) (*UnicastUDPTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %s: %w", addr, err)
	}
	return &UnicastUDPTransport{conn: conn}, nil
}

func (t *UnicastUDPTransport) String() string {
	return fmt.Sprintf("unicast-udp-transport (remote=%s)", t.conn.RemoteAddr())
}

func (t *UnicastUDPTransport) Send(msg []byte) error {
	_, err := t.conn.Write(msg)
	return err
}

func (t *UnicastUDPTransport) Close() error         { return t.conn.Close() }
func (t *UnicastUDPTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

func (t *UnicastUDPTransport) runReceive(faceid uint64, sink chan<- Frame) {
	defer t.Close()
	buf := make([]byte, maxFrameSize)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			core.Log.Warn(t, "read failed, face down", "err", err)
			return
		}
		frame := append([]byte{}, buf[:n]...)
		sink <- Frame{FaceID: faceid, Data: frame}
	}
}

// MulticastUDPTransport is the always-up multicast link-layer face of
// spec.md §4.6's "multicast/link-layer faces" class, grounded on the
// teacher's MulticastUDPTransport (separate send/receive sockets, one
// bound to the interface for group membership).
type MulticastUDPTransport struct {
	sendConn *net.UDPConn
	recvConn *net.UDPConn
	group    *net.UDPAddr
}

// NewMulticastUDPTransport joins group on iface and opens a send socket
// addressed at the group.
func NewMulticastUDPTransport(iface *net.Interface, group *net.UDPAddr) (*MulticastUDPTransport, error) {
	recvConn, err := net.ListenMulticastUDP("udp", iface, group)
	if err != nil {
		return nil, fmt.Errorf("listen multicast udp %s: %w", group, err)
	}
	sendConn, err := net.DialUDP("udp", nil, group)
	if err != nil {
		recvConn.Close()
		return nil, fmt.Errorf("dial multicast udp %s: %w", group, err)
	}
	return &MulticastUDPTransport{sendConn: sendConn, recvConn: recvConn, group: group}, nil
}

func (t *MulticastUDPTransport) String() string {
	return fmt.Sprintf("multicast-udp-transport (group=%s)", t.group)
}

func (t *MulticastUDPTransport) Send(msg []byte) error {
	_, err := t.sendConn.Write(msg)
	return err
}

func (t *MulticastUDPTransport) Close() error {
	t.sendConn.Close()
	return t.recvConn.Close()
}

func (t *MulticastUDPTransport) RemoteAddr() net.Addr { return t.group }

func (t *MulticastUDPTransport) runReceive(faceid uint64, sink chan<- Frame) {
	defer t.Close()
	buf := make([]byte, maxFrameSize)
	for {
		n, _, err := t.recvConn.ReadFromUDP(buf)
		if err != nil {
			core.Log.Warn(t, "read failed, face down", "err", err)
			return
		}
		frame := append([]byte{}, buf[:n]...)
		sink <- Frame{FaceID: faceid, Data: frame}
	}
}
