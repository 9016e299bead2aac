// Package main is the ccnd composition root: it builds an fw.Engine, wires
// every configured listener into an fw.IoLoop, attaches the management
// Thread as the engine's LocalHandler, and runs until signaled. Grounded
// on the teacher's fw/cmd.YaNFD, the struct cmd.go's run() builds and
// calls Start/Stop on.
package main

import (
	"fmt"

	"github.com/ccnd-project/ccnd/face"
	"github.com/ccnd-project/ccnd/fw"
	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/ccnd-project/ccnd/mgmt"
)

type listener interface{ Close() error }

// Daemon owns the long-lived state a running ccnd needs beyond the engine
// itself: the listeners it opened, so Stop can close them in the right
// order.
type Daemon struct {
	config *core.Config

	Engine *fw.Engine
	Loop   *fw.IoLoop
	Mgmt   *mgmt.Thread

	listeners []listener
}

// NewDaemon builds an idle Daemon from config; call Start to bring up
// listeners and begin forwarding.
func NewDaemon(config *core.Config) *Daemon {
	engine := fw.NewEngine(config.CS.Cap)
	loop := fw.NewIoLoop(engine)
	thread := mgmt.NewThread(engine, loop)
	engine.Local = thread

	return &Daemon{
		config: config,
		Engine: engine,
		Loop:   loop,
		Mgmt:   thread,
	}
}

func (d *Daemon) String() string { return "ccnd" }

// Start opens every listener named in config and begins running the
// IoLoop in its own goroutine. The Unix-domain socket is the trusted
// "internal client" conversation of spec.md §6, so faces accepted on it
// get FlagGG; faces accepted over TCP do not.
func (d *Daemon) Start() error {
	if d.config.Core.UnixSocketPath != "" {
		ln, err := face.ListenUnix(d.config.Core.UnixSocketPath, d.onAcceptUnix)
		if err != nil {
			return fmt.Errorf("ccnd: unix listener: %w", err)
		}
		d.listeners = append(d.listeners, ln)
		core.Log.Info(d, "listening", "transport", "unix", "path", d.config.Core.UnixSocketPath)
	}

	for _, addr := range d.config.Core.ListenOn {
		tcpAddr := fmt.Sprintf("%s:%d", addr, d.config.Core.Port)
		tln, err := face.ListenTCP(tcpAddr, d.onAcceptTCP)
		if err != nil {
			return fmt.Errorf("ccnd: tcp listener on %s: %w", tcpAddr, err)
		}
		d.listeners = append(d.listeners, tln)
		core.Log.Info(d, "listening", "transport", "tcp", "addr", tcpAddr)
	}

	for _, prefix := range d.config.Core.Autoreg {
		d.autoregister(prefix)
	}

	go d.Loop.Run()
	core.Log.Info(d, "ccnd started")
	return nil
}

// Stop closes every listener and the IoLoop, in that order so no new face
// can be accepted while in-flight ones are still being drained.
func (d *Daemon) Stop() {
	for _, ln := range d.listeners {
		_ = ln.Close()
	}
	d.Loop.Stop()
	core.Log.Info(d, "ccnd stopped")
}

func (d *Daemon) onAcceptTCP(t *face.TCPTransport) {
	d.Loop.Post(func() {
		if _, err := d.Loop.AddFace(t, 0); err != nil {
			core.Log.Warn(d, "failed to enroll tcp face", "err", err)
			_ = t.Close()
		}
	})
}

func (d *Daemon) onAcceptUnix(t *face.UnixTransport) {
	d.Loop.Post(func() {
		if _, err := d.Loop.AddFace(t, face.FlagGG); err != nil {
			core.Log.Warn(d, "failed to enroll unix face", "err", err)
			_ = t.Close()
		}
	})
}

// autoregister enrolls a new permanent null face for one CCND_AUTOREG
// prefix and installs a FIB entry for the prefix on it (each prefix gets
// its own null face), matching the original daemon's behavior of
// routing otherwise-unroutable Interests under configured prefixes rather
// than silently dropping them. Run on the loop's own goroutine since it
// mutates the FIB.
func (d *Daemon) autoregister(prefix string) {
	d.Loop.Post(func() {
		n, err := parseAutoregPrefix(prefix)
		if err != nil {
			core.Log.Warn(d, "invalid autoreg prefix", "prefix", prefix, "err", err)
			return
		}
		nullFace, err := d.Loop.AddFace(face.NullTransport{}, face.FlagPermanent)
		if err != nil {
			core.Log.Warn(d, "failed to enroll null face for autoreg", "err", err)
			return
		}
		d.Engine.FIB.AddForwarding(n, nullFace, 0, 0)
		core.Log.Info(d, "autoregistered prefix", "prefix", prefix, "faceid", nullFace)
	})
}
