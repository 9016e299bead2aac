package mgmt

import (
	"net"
	"testing"

	"github.com/ccnd-project/ccnd/face"
	"github.com/ccnd-project/ccnd/fw"
	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct{}

func (fakeTransport) Send([]byte) error    { return nil }
func (fakeTransport) Close() error         { return nil }
func (fakeTransport) RemoteAddr() net.Addr { return nil }

func newHarness(t *testing.T) (*Thread, *fw.Engine, *fw.IoLoop) {
	t.Helper()
	engine := fw.NewEngine(16)
	loop := fw.NewIoLoop(engine)
	thread := NewThread(engine, loop)
	engine.Local = thread
	return thread, engine, loop
}

func requestName(t *testing.T, verb string, body []byte) ccnname.Name {
	t.Helper()
	n, err := ccnname.NameFromStr(LocalPrefix.String())
	require.NoError(t, err)
	return n.Append(ccnname.NewGenericComponent(verb), ccnname.NewGenericComponent(string(body)))
}

func mustName(t *testing.T, uri string) ccnname.Name {
	t.Helper()
	n, err := ccnname.NameFromStr(uri)
	require.NoError(t, err)
	return n
}

func TestPrefixRegRequiresAuthorization(t *testing.T) {
	thread, engine, _ := newHarness(t)
	consumer, err := engine.AddFace(fakeTransport{}, 0)
	require.NoError(t, err)

	fe := &ForwardingEntry{Prefix: mustName(t, "/a"), FaceID: consumer}
	it := &ccnb.Interest{Name: requestName(t, "prefixreg", fe.Encode())}

	reply := thread.Handle(it, consumer)
	require.NotNil(t, reply)
	status := DecodeStatusResponse(reply.Content)
	assert.Equal(t, 430, status.Code)
}

func TestPrefixRegSucceedsForGGFace(t *testing.T) {
	thread, engine, _ := newHarness(t)
	producer, err := engine.AddFace(fakeTransport{}, face.FlagGG)
	require.NoError(t, err)

	fe := &ForwardingEntry{Prefix: mustName(t, "/a"), FaceID: producer}
	it := &ccnb.Interest{Name: requestName(t, "prefixreg", fe.Encode())}

	reply := thread.Handle(it, producer)
	require.NotNil(t, reply)
	got, err := DecodeForwardingEntry(reply.Content)
	require.NoError(t, err)
	assert.Equal(t, producer, got.FaceID)
	assert.EqualValues(t, minDefaultLifetimeSec, got.Lifetime)

	node, ok := engine.FIB.Lookup(fe.Prefix)
	require.True(t, ok)
	require.Len(t, node.Forwarding, 1)
	assert.Equal(t, producer, node.Forwarding[0].FaceID)
}

func TestSelfRegUsesArrivalFaceAsTarget(t *testing.T) {
	thread, engine, _ := newHarness(t)
	consumer, err := engine.AddFace(fakeTransport{}, face.FlagGG)
	require.NoError(t, err)

	fe := &ForwardingEntry{Prefix: mustName(t, "/a/b")}
	it := &ccnb.Interest{Name: requestName(t, "selfreg", fe.Encode())}

	reply := thread.Handle(it, consumer)
	got, err := DecodeForwardingEntry(reply.Content)
	require.NoError(t, err)
	assert.Equal(t, consumer, got.FaceID)
}

func TestUnregRemovesEntry(t *testing.T) {
	thread, engine, _ := newHarness(t)
	producer, err := engine.AddFace(fakeTransport{}, face.FlagGG)
	require.NoError(t, err)
	engine.FIB.AddForwarding(mustName(t, "/a"), producer, 1, 0)

	fe := &ForwardingEntry{Prefix: mustName(t, "/a"), FaceID: producer}
	it := &ccnb.Interest{Name: requestName(t, "unreg", fe.Encode())}

	reply := thread.Handle(it, producer)
	_, err = DecodeForwardingEntry(reply.Content)
	require.NoError(t, err)

	node, ok := engine.FIB.Lookup(fe.Prefix)
	require.True(t, ok)
	assert.Empty(t, node.Forwarding)
}

func TestSetAndGetAndRemoveStrategy(t *testing.T) {
	thread, engine, _ := newHarness(t)
	producer, err := engine.AddFace(fakeTransport{}, face.FlagGG)
	require.NoError(t, err)

	sel := &StrategySelection{Prefix: mustName(t, "/a"), ID: "multicast"}
	setIt := &ccnb.Interest{Name: requestName(t, "setstrategy", sel.Encode())}
	reply := thread.Handle(setIt, producer)
	got, err := DecodeStrategySelection(reply.Content)
	require.NoError(t, err)
	assert.Equal(t, "multicast", got.ID)

	getSel := &StrategySelection{Prefix: mustName(t, "/a/b")}
	getIt := &ccnb.Interest{Name: requestName(t, "getstrategy", getSel.Encode())}
	reply = thread.Handle(getIt, producer)
	got, err = DecodeStrategySelection(reply.Content)
	require.NoError(t, err)
	assert.Equal(t, "multicast", got.ID, "a descendant prefix must inherit /a's strategy")
	assert.Equal(t, "/a", got.Prefix.String())

	removeIt := &ccnb.Interest{Name: requestName(t, "removestrategy", sel.Encode())}
	reply = thread.Handle(removeIt, producer)
	got, err = DecodeStrategySelection(reply.Content)
	require.NoError(t, err)
	assert.Equal(t, "default", got.ID, "after removal /a must fall back to the root default")
}

func TestUnknownVerbIsSyntaxError(t *testing.T) {
	thread, engine, _ := newHarness(t)
	consumer, err := engine.AddFace(fakeTransport{}, 0)
	require.NoError(t, err)
	it := &ccnb.Interest{Name: requestName(t, "frobnicate", nil)}
	reply := thread.Handle(it, consumer)
	status := DecodeStatusResponse(reply.Content)
	assert.Equal(t, 501, status.Code)
}

func TestMatchesOnlyLocalPrefix(t *testing.T) {
	thread, _, _ := newHarness(t)
	assert.True(t, thread.Matches(mustName(t, "/localhost/ccnd/prefixreg")))
	assert.False(t, thread.Matches(mustName(t, "/a/b")))
}

type recordingTransport struct{ sent [][]byte }

func (r *recordingTransport) Send(msg []byte) error {
	r.sent = append(r.sent, append([]byte{}, msg...))
	return nil
}
func (*recordingTransport) Close() error         { return nil }
func (*recordingTransport) RemoteAddr() net.Addr { return nil }

// TestEngineRoutesManagementInterestThroughWireCodec exercises the real
// path a management client drives: an encoded Interest arrives on
// Engine.ProcessInterest, gets intercepted by Engine.Local before the
// CS/PIT pipeline, and the reply comes back as a wire-encoded Content
// Object on the same face rather than through the SendQueue.
func TestEngineRoutesManagementInterestThroughWireCodec(t *testing.T) {
	_, engine, _ := newHarness(t)
	tr := &recordingTransport{}
	client, err := engine.AddFace(tr, face.FlagGG)
	require.NoError(t, err)

	fe := &ForwardingEntry{Prefix: mustName(t, "/a"), FaceID: client}
	it := &ccnb.Interest{Name: requestName(t, "prefixreg", fe.Encode())}
	raw, err := ccnb.TLVCodec{}.EncodeInterest(it)
	require.NoError(t, err)

	require.NoError(t, engine.ProcessInterest(raw, client))
	require.Len(t, tr.sent, 1)

	co, err := ccnb.TLVCodec{}.DecodeData(tr.sent[0])
	require.NoError(t, err)
	got, err := DecodeForwardingEntry(co.Content)
	require.NoError(t, err)
	assert.Equal(t, client, got.FaceID)
}
