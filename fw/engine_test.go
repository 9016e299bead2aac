package fw

import (
	"net"
	"testing"
	"time"

	"github.com/ccnd-project/ccnd/face"
	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/ccnd-project/ccnd/internal/optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	sent [][]byte
}

func (t *recordingTransport) Send(msg []byte) error {
	t.sent = append(t.sent, append([]byte{}, msg...))
	return nil
}
func (t *recordingTransport) Close() error         { return nil }
func (t *recordingTransport) RemoteAddr() net.Addr { return nil }

// advance drives the engine's scheduler far enough for any SendQueue's SLOW
// class (the widest delay/jitter window) to have fired.
func advance(e *Engine, d time.Duration) {
	e.Sched.Advance(e.Sched.Now().Add(core.DurationToTicks(d)))
}

func mustName(t *testing.T, uri string) ccnname.Name {
	t.Helper()
	n, err := ccnname.NameFromStr(uri)
	require.NoError(t, err)
	return n
}

func TestEngineContentStoreHitSendsImmediately(t *testing.T) {
	e := NewEngine(16)

	co := &ccnb.ContentObject{Name: mustName(t, "/a/b"), Content: []byte("hello")}
	_, err := ccnb.TLVCodec{}.EncodeData(co)
	require.NoError(t, err)
	e.CS.Insert(co, face.MaxFaces, e.staleTimeNow(), time.Minute)

	consumerT := &recordingTransport{}
	consumer, err := e.AddFace(consumerT, face.FlagGG)
	require.NoError(t, err)

	it := &ccnb.Interest{Name: mustName(t, "/a/b"), Nonce: optional.Some(uint32(1)), InterestLifetime: 4 * time.Second}
	raw, err := ccnb.TLVCodec{}.EncodeInterest(it)
	require.NoError(t, err)

	require.NoError(t, e.ProcessInterest(raw, consumer))
	advance(e, 100*time.Millisecond)

	require.Len(t, consumerT.sent, 1)
	got, err := ccnb.TLVCodec{}.DecodeData(consumerT.sent[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got.Content)
}

func TestEngineMissForwardsInterestUpstream(t *testing.T) {
	e := NewEngine(16)

	producerT := &recordingTransport{}
	producer, err := e.AddFace(producerT, 0)
	require.NoError(t, err)
	consumerT := &recordingTransport{}
	consumer, err := e.AddFace(consumerT, 0)
	require.NoError(t, err)

	e.FIB.AddForwarding(mustName(t, "/a"), producer, 0x01 /*FlagActive*/, 0)

	it := &ccnb.Interest{Name: mustName(t, "/a/x"), Nonce: optional.Some(uint32(7)), InterestLifetime: 4 * time.Second}
	raw, err := ccnb.TLVCodec{}.EncodeInterest(it)
	require.NoError(t, err)

	require.NoError(t, e.ProcessInterest(raw, consumer))
	advance(e, 0)

	require.Len(t, producerT.sent, 1)
	fwd, err := ccnb.TLVCodec{}.DecodeInterest(producerT.sent[0])
	require.NoError(t, err)
	assert.Equal(t, it.Name.Flat(), fwd.Name.Flat())
	assert.Empty(t, consumerT.sent, "the consumer's own request must never be echoed back")
}

func TestEngineContentSatisfiesPendingInterestAndDelivers(t *testing.T) {
	e := NewEngine(16)

	producerT := &recordingTransport{}
	producer, err := e.AddFace(producerT, 0)
	require.NoError(t, err)
	consumerT := &recordingTransport{}
	consumer, err := e.AddFace(consumerT, face.FlagGG)
	require.NoError(t, err)

	e.FIB.AddForwarding(mustName(t, "/a"), producer, 0x01, 0)

	it := &ccnb.Interest{Name: mustName(t, "/a/x"), Nonce: optional.Some(uint32(9)), InterestLifetime: 4 * time.Second}
	raw, err := ccnb.TLVCodec{}.EncodeInterest(it)
	require.NoError(t, err)
	require.NoError(t, e.ProcessInterest(raw, consumer))
	advance(e, 0)
	require.Len(t, producerT.sent, 1, "interest must have gone upstream before the object can satisfy it")

	co := &ccnb.ContentObject{Name: mustName(t, "/a/x"), Content: []byte("world")}
	coRaw, err := ccnb.TLVCodec{}.EncodeData(co)
	require.NoError(t, err)

	require.NoError(t, e.ProcessContent(coRaw, producer))
	advance(e, 100*time.Millisecond)

	require.Len(t, consumerT.sent, 1)
	got, err := ccnb.TLVCodec{}.DecodeData(consumerT.sent[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), got.Content)
}
