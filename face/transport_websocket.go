package face

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/gorilla/websocket"
)

// WebSocketTransport carries CCN messages as WebSocket binary frames,
// grounded on the teacher's WebSocketTransport (fw/face/web-socket-
// transport.go): one message per WebSocket frame, no additional length
// framing needed.
type WebSocketTransport struct {
	c *websocket.Conn
}

func NewWebSocketTransport(c *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{c: c}
}

func (t *WebSocketTransport) String() string {
	return fmt.Sprintf("web-socket-transport (remote=%s)", t.c.RemoteAddr())
}

func (t *WebSocketTransport) Send(msg []byte) error {
	return t.c.WriteMessage(websocket.BinaryMessage, msg)
}

func (t *WebSocketTransport) Close() error         { return t.c.Close() }
func (t *WebSocketTransport) RemoteAddr() net.Addr { return t.c.RemoteAddr() }

func (t *WebSocketTransport) runReceive(faceid uint64, sink chan<- Frame) {
	defer t.Close()
	for {
		mt, message, err := t.c.ReadMessage()
		if err != nil {
			core.Log.Warn(t, "read failed, face down", "err", err)
			return
		}
		if mt != websocket.BinaryMessage {
			core.Log.Warn(t, "ignored non-binary message")
			continue
		}
		if len(message) > maxFrameSize {
			core.Log.Warn(t, "dropped oversized message")
			continue
		}
		sink <- Frame{FaceID: faceid, Data: message}
	}
}

// WebSocketListener upgrades incoming HTTP requests to WebSocket faces for
// browser-based consumers (spec.md's transport-diversity expansion),
// grounded on the teacher's WebSocketListener.
type WebSocketListener struct {
	server   http.Server
	upgrader websocket.Upgrader
	onAccept func(*WebSocketTransport)
}

func NewWebSocketListener(addr string, onAccept func(*WebSocketTransport)) *WebSocketListener {
	l := &WebSocketListener{
		server: http.Server{Addr: addr},
		upgrader: websocket.Upgrader{
			WriteBufferPool: &sync.Pool{},
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		onAccept: onAccept,
	}
	l.server.Handler = http.HandlerFunc(l.handle)
	return l
}

func (l *WebSocketListener) String() string { return fmt.Sprintf("web-socket-listener (%s)", l.server.Addr) }

func (l *WebSocketListener) Run() {
	if err := l.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		core.Log.Error(l, "listener stopped", "err", err)
	}
}

func (l *WebSocketListener) handle(w http.ResponseWriter, r *http.Request) {
	c, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	core.Log.Info(l, "accepted websocket face", "remote", c.RemoteAddr())
	l.onAccept(NewWebSocketTransport(c))
}

func (l *WebSocketListener) Close() error { return l.server.Shutdown(context.Background()) }
