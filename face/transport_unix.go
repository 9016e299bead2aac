package face

import (
	"bufio"
	"errors"
	"fmt"
	"net"

	"github.com/ccnd-project/ccnd/internal/core"
)

// UnixTransport is the local-domain socket transport management clients
// and local applications connect over, grounded on the teacher's
// UnixStreamTransport (fw/face/unix-stream-transport.go).
type UnixTransport struct {
	conn   *net.UnixConn
	reader *bufio.Reader
	closed chan struct{}
}

func NewUnixTransport(conn *net.UnixConn) *UnixTransport {
	return &UnixTransport{conn: conn, reader: bufio.NewReader(conn), closed: make(chan struct{})}
}

// DialUnix connects to a ccnd instance's local-domain socket, the transport
// a management client (cmd/ccndc) uses to reach the trusted internal-client
// conversation of spec.md §6.
func DialUnix(path string) (*UnixTransport, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("resolve unix addr %s: %w", path, err)
	}
	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial unix %s: %w", path, err)
	}
	return NewUnixTransport(conn), nil
}

func (t *UnixTransport) String() string { return "unix-stream-transport" }

func (t *UnixTransport) Send(msg []byte) error {
	_, err := t.conn.Write(msg)
	return err
}

func (t *UnixTransport) Close() error {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	return t.conn.Close()
}

func (t *UnixTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

// ReadFrame blocks for the next complete message on this connection. Used
// directly by one-shot clients (cmd/ccndc) that want a single synchronous
// reply rather than a standing runReceive goroutine feeding a Frame channel.
func (t *UnixTransport) ReadFrame() ([]byte, error) {
	return ReadFrame(t.reader)
}

func (t *UnixTransport) runReceive(faceid uint64, sink chan<- Frame) {
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

// UnixListener accepts connections on the daemon's local-domain socket
// (spec.md §6's "local-domain socket listener"); its disappearance from
// disk is the sole graceful-shutdown trigger (spec.md §7).
type UnixListener struct {
	ln       *net.UnixListener
	path     string
	onAccept func(*UnixTransport)
}

func ListenUnix(path string, onAccept func(*UnixTransport)) (*UnixListener, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("resolve unix addr %s: %w", path, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("listen unix %s: %w", path, err)
	}
	l := &UnixListener{ln: ln, path: path, onAccept: onAccept}
	go l.run()
	return l, nil
}

func (l *UnixListener) String() string { return fmt.Sprintf("unix-listener (%s)", l.path) }

func (l *UnixListener) run() {
	for {
		conn, err := l.ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			core.Log.Warn(l, "accept failed", "err", err)
			continue
		}
		l.onAccept(NewUnixTransport(conn))
	}
}

func (l *UnixListener) Close() error { return l.ln.Close() }
