package face

import (
	"bufio"
	"errors"
	"fmt"
	"net"

	"github.com/ccnd-project/ccnd/internal/core"
)

// TCPTransport is a point-to-point stream transport over a TCP connection,
// grounded on the teacher's UnicastTCPTransport shape (fw/face/transport.go
// family), reduced to this package's minimal Transport surface.
type TCPTransport struct {
	conn   net.Conn
	reader *bufio.Reader
	closed chan struct{}
}

// NewTCPTransport wraps an already-connected or already-accepted TCP conn.
func NewTCPTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{conn: conn, reader: bufio.NewReader(conn), closed: make(chan struct{})}
}

// DialTCP connects outward to a remote TCP listener (the client side of a
// permanent configured face).
func DialTCP(addr string) (*TCPTransport, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", addr, err)
	}
	return NewTCPTransport(conn), nil
}

func (t *TCPTransport) String() string {
	return fmt.Sprintf("tcp-transport (remote=%s)", t.conn.RemoteAddr())
}

func (t *TCPTransport) Send(msg []byte) error {
	_, err := t.conn.Write(msg)
	return err
}

func (t *TCPTransport) Close() error {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	return t.conn.Close()
}

func (t *TCPTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

func (t *TCPTransport) runReceive(faceid uint64, sink chan<- Frame) {
	defer t.Close()
	for {
		frame, err := ReadFrame(t.reader)
		if err != nil {
			select {
			case <-t.closed:
			default:
				core.Log.Warn(t, "read failed, face down", "err", err)
			}
			return
		}
		sink <- Frame{FaceID: faceid, Data: frame}
	}
}

// TCPListener accepts incoming TCP connections and reports each one through
// onAccept, grounded on the teacher's TCPListener.Run accept loop.
type TCPListener struct {
	ln       net.Listener
	onAccept func(*TCPTransport)
}

// ListenTCP starts a TCP listener on addr, calling onAccept for every new
// connection.
func ListenTCP(addr string, onAccept func(*TCPTransport)) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	l := &TCPListener{ln: ln, onAccept: onAccept}
	go l.run()
	return l, nil
}

func (l *TCPListener) String() string { return fmt.Sprintf("tcp-listener (%s)", l.ln.Addr()) }

func (l *TCPListener) run() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			core.Log.Warn(l, "accept failed", "err", err)
			continue
		}
		core.Log.Info(l, "accepted tcp face", "remote", conn.RemoteAddr())
		l.onAccept(NewTCPTransport(conn))
	}
}

func (l *TCPListener) Close() error { return l.ln.Close() }
