package face

import (
	"net"
	"testing"
	"time"

	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScheduler runs callbacks synchronously when Fire is invoked, rather
// than on a real clock, so queue draining can be driven deterministically.
type fakeScheduler struct {
	cb       func() time.Duration
	canceled bool
}

func (s *fakeScheduler) Schedule(delay time.Duration, cb func() time.Duration) SchedulerHandle {
	s.cb = cb
	return s
}

func (s *fakeScheduler) Cancel(h SchedulerHandle) { s.canceled = true }

func (s *fakeScheduler) Fire() time.Duration {
	cb := s.cb
	s.cb = nil
	return cb()
}

type recordingTransport struct {
	sent [][]byte
	err  error
}

func (t *recordingTransport) Send(msg []byte) error {
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, append([]byte{}, msg...))
	return nil
}
func (t *recordingTransport) Close() error       { return nil }
func (t *recordingTransport) RemoteAddr() net.Addr { return nil }

func newTestCS(t *testing.T) (*table.ContentStore, uint32) {
	t.Helper()
	cs := table.NewContentStore(16, nil)
	name, err := ccnname.NameFromStr("/a/b")
	require.NoError(t, err)
	co := &ccnb.ContentObject{Name: name, Content: []byte("hello"), Wire: []byte("wire-bytes")}
	entry := cs.Insert(co, 1, 0, time.Minute)
	return cs, entry.Cookie
}

func TestQueueInsertSendsOnFire(t *testing.T) {
	cs, cookie := newTestCS(t)
	f := &Face{Transport: &recordingTransport{}}
	sched := &fakeScheduler{}
	f.InitQueues(cs, sched)

	f.Enqueue(ClassNormal, cookie)
	require.NotNil(t, sched.cb, "insert on an empty queue must arm the timer")

	next := sched.Fire()
	assert.Equal(t, time.Duration(0), next, "draining the queue must stop the timer")

	tr := f.Transport.(*recordingTransport)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, []byte("wire-bytes"), tr.sent[0])

	entry, ok := cs.FromCookie(cookie)
	require.True(t, ok)
	assert.Equal(t, 0, entry.Refcount, "send must drop the refcount the insert took")
}

func TestQueueDeduplicatesInsert(t *testing.T) {
	cs, cookie := newTestCS(t)
	f := &Face{Transport: &recordingTransport{}}
	sched := &fakeScheduler{}
	f.InitQueues(cs, sched)

	f.Enqueue(ClassNormal, cookie)
	f.Enqueue(ClassNormal, cookie)

	entry, _ := cs.FromCookie(cookie)
	assert.Equal(t, 1, entry.Refcount, "set-like insert must not double the refcount")
}

func TestQueueMulticastCoalesceAcrossClasses(t *testing.T) {
	cs, cookie := newTestCS(t)
	f := &Face{Transport: &recordingTransport{}}
	f.InitQueues(cs, &fakeScheduler{})

	f.Enqueue(ClassNormal, cookie)
	f.Enqueue(ClassSlow, cookie) // already queued elsewhere on this face: no-op

	assert.True(t, f.queues[ClassNormal].Contains(cookie))
	assert.False(t, f.queues[ClassSlow].Contains(cookie))

	entry, _ := cs.FromCookie(cookie)
	assert.Equal(t, 1, entry.Refcount)
}

func TestQueueClearInPlaceSuppressesSend(t *testing.T) {
	cs, cookie := newTestCS(t)
	f := &Face{Transport: &recordingTransport{}}
	sched := &fakeScheduler{}
	f.InitQueues(cs, sched)

	f.Enqueue(ClassNormal, cookie)
	f.ClearQueuedCookie(cookie)

	entry, _ := cs.FromCookie(cookie)
	assert.Equal(t, 0, entry.Refcount, "clearing must drop the refcount the insert took")

	sched.Fire()
	tr := f.Transport.(*recordingTransport)
	assert.Empty(t, tr.sent, "a coalesced cookie must never be transmitted")
}

func TestQueueCloseReleasesHeldRefcounts(t *testing.T) {
	cs, cookie := newTestCS(t)
	f := &Face{Transport: &recordingTransport{}}
	sched := &fakeScheduler{}
	f.InitQueues(cs, sched)

	f.Enqueue(ClassNormal, cookie)
	f.CloseQueues()

	assert.True(t, sched.canceled)
	entry, _ := cs.FromCookie(cookie)
	assert.Equal(t, 0, entry.Refcount)
}
