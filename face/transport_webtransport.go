package face

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
)

// webtransportAddr is a net.Addr wrapper for sessions, which expose their
// remote endpoint only as a string.
type webtransportAddr string

func (a webtransportAddr) Network() string { return "webtransport" }
func (a webtransportAddr) String() string  { return string(a) }

// WebTransportTransport carries CCN messages as HTTP/3 WebTransport
// datagrams (spec.md's transport-diversity expansion), grounded on the
// teacher's HTTP3Transport (fw/face/http3-transport.go): one message per
// datagram, no additional length framing.
type WebTransportTransport struct {
	session *webtransport.Session
	remote  net.Addr
}

func NewWebTransportTransport(session *webtransport.Session, remote string) *WebTransportTransport {
	return &WebTransportTransport{session: session, remote: webtransportAddr(remote)}
}

func (t *WebTransportTransport) String() string {
	return fmt.Sprintf("webtransport-transport (remote=%s)", t.remote)
}

func (t *WebTransportTransport) Send(msg []byte) error {
	return t.session.SendDatagram(msg)
}

func (t *WebTransportTransport) Close() error         { return t.session.CloseWithError(0, "") }
func (t *WebTransportTransport) RemoteAddr() net.Addr { return t.remote }

func (t *WebTransportTransport) runReceive(faceid uint64, sink chan<- Frame) {
	defer t.Close()
	for {
		message, err := t.session.ReceiveDatagram(t.session.Context())
		if err != nil {
			core.Log.Warn(t, "read failed, face down", "err", err)
			return
		}
		if len(message) > maxFrameSize {
			core.Log.Warn(t, "dropped oversized message")
			continue
		}
		sink <- Frame{FaceID: faceid, Data: message}
	}
}

// WebTransportListener accepts HTTP/3 WebTransport sessions, grounded on
// the teacher's HTTP3Listener (fw/face/http3-listener.go).
type WebTransportListener struct {
	mux      *http.ServeMux
	server   *webtransport.Server
	onAccept func(*WebTransportTransport)
}

func NewWebTransportListener(addr, certFile, keyFile string, onAccept func(*WebTransportTransport)) (*WebTransportListener, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}

	l := &WebTransportListener{mux: http.NewServeMux(), onAccept: onAccept}
	l.mux.HandleFunc("/ccn", l.handle)

	l.server = &webtransport.Server{
		H3: http3.Server{
			Addr: addr,
			TLSConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
			QUICConfig: &quic.Config{
				MaxIdleTimeout:          60 * time.Second,
				KeepAlivePeriod:         30 * time.Second,
				DisablePathMTUDiscovery: true,
			},
			Handler: l.mux,
		},
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return l, nil
}

func (l *WebTransportListener) String() string { return "webtransport-listener" }

func (l *WebTransportListener) Run() {
	if err := l.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		core.Log.Error(l, "listener stopped", "err", err)
	}
}

func (l *WebTransportListener) handle(w http.ResponseWriter, r *http.Request) {
	session, err := l.server.Upgrade(w, r)
	if err != nil {
		return
	}
	core.Log.Info(l, "accepted webtransport face", "remote", r.RemoteAddr)
	l.onAccept(NewWebTransportTransport(session, r.RemoteAddr))
}

func (l *WebTransportListener) Close() error { return l.server.Close() }
