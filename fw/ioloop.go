package fw

import (
	"sync/atomic"
	"time"

	"github.com/ccnd-project/ccnd/face"
	"github.com/ccnd-project/ccnd/internal/core"
)

// IoLoop is the single goroutine that owns an Engine's tables, grounded on
// the teacher's std/engine/basic.Engine.Start: one select loop draining an
// inbound-frame channel, a task queue for cross-goroutine requests (mgmt
// commands, face enroll/destroy), and a close channel. Every transport's
// own read goroutine (face's transport_*.go runReceive methods) pushes
// onto the channel this loop drains, so table mutation never leaves this
// one goroutine even with many concurrent per-face readers (spec.md §4.7).
type IoLoop struct {
	Engine *Engine

	frames  chan face.Frame
	tasks   chan func()
	closeCh chan struct{}
	running atomic.Bool

	// TickInterval bounds how long an armed Scheduler callback can wait
	// past its due time with no I/O to piggyback the clock refresh on
	// (spec.md §4.7: "the clock is refreshed once per loop iteration when
	// I/O returns readiness" — the ticker is the idle-loop fallback).
	TickInterval time.Duration
}

// NewIoLoop builds a loop around engine, with channel buffer sizes mirroring
// the teacher's inQueue(256)/taskQueue(512) sizing.
func NewIoLoop(engine *Engine) *IoLoop {
	return &IoLoop{
		Engine:       engine,
		frames:       make(chan face.Frame, 256),
		tasks:        make(chan func(), 512),
		closeCh:      make(chan struct{}),
		TickInterval: 20 * time.Millisecond,
	}
}

func (l *IoLoop) String() string { return "ioloop" }

// AddFace enrolls t on the engine and starts its read goroutine feeding
// this loop's Sink, the composition-root step Engine.AddFace alone does
// not perform (it only updates tables, so it stays safe to call from
// tests with no running loop). Safe to call from the loop's own goroutine
// (mgmt's newface handler).
func (l *IoLoop) AddFace(t face.Transport, flags face.Flag) (uint64, error) {
	id, err := l.Engine.AddFace(t, flags)
	if err != nil {
		return 0, err
	}
	face.StartReceiving(t, id, l.frames)
	return id, nil
}

// RemoveFace destroys a face through the engine. Safe to call from the
// loop's own goroutine (mgmt's destroyface handler) since it only touches
// tables the loop already owns exclusively.
func (l *IoLoop) RemoveFace(faceid uint64) {
	l.Engine.RemoveFace(faceid)
}

// Sink is the channel every face's runReceive goroutine pushes onto;
// IoLoop.AddFace wires each enrolled transport's receive loop to it. It is
// also exposed so callers can inject frames directly.
func (l *IoLoop) Sink() chan<- face.Frame { return l.frames }

// Post queues a task to run on the loop's own goroutine. Mgmt commands and
// face enroll/destroy must go through here, since every table the Engine
// holds assumes a single-goroutine owner (mirrors the teacher's
// Engine.Post non-blocking-fallback: a full task queue spawns a goroutine
// to enqueue rather than stalling the caller).
func (l *IoLoop) Post(task func()) {
	select {
	case l.tasks <- task:
	default:
		go func() { l.tasks <- task }()
	}
}

// Run drives the loop until Stop is called, blocking the calling goroutine.
func (l *IoLoop) Run() {
	l.running.Store(true)
	defer l.running.Store(false)

	ticker := time.NewTicker(l.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-l.frames:
			l.refreshClock()
			if err := l.Engine.ProcessFrame(frame.Data, frame.FaceID); err != nil {
				core.Log.Debug(l, "dropped frame", "face", frame.FaceID, "err", err)
			}
		case task := <-l.tasks:
			l.refreshClock()
			task()
		case <-ticker.C:
			l.refreshClock()
		case <-l.closeCh:
			return
		}
	}
}

func (l *IoLoop) refreshClock() {
	l.Engine.Sched.Advance(core.Now(time.Since(l.Engine.startedAt)))
}

// Stop signals Run to return. Safe to call at most once; a second call
// would panic on the already-closed channel, matching the teacher's
// Engine.Stop, which likewise only tolerates a single Stop while running.
func (l *IoLoop) Stop() {
	if !l.running.Load() {
		return
	}
	close(l.closeCh)
}

// IsRunning reports whether Run's loop is currently active.
func (l *IoLoop) IsRunning() bool { return l.running.Load() }
