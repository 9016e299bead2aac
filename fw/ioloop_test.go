package fw

import (
	"testing"
	"time"

	"github.com/ccnd-project/ccnd/face"
	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoLoopRoutesFrameToForwardingEngine(t *testing.T) {
	e := NewEngine(16)
	loop := NewIoLoop(e)
	loop.TickInterval = time.Hour // keep the test deterministic; no idle ticks

	producerT := &recordingTransport{}
	producer, err := e.AddFace(producerT, 0)
	require.NoError(t, err)
	consumerT := &recordingTransport{}
	consumer, err := e.AddFace(consumerT, 0)
	require.NoError(t, err)
	e.FIB.AddForwarding(mustName(t, "/a"), producer, 0x01, 0)

	go loop.Run()
	defer loop.Stop()

	it := &ccnb.Interest{Name: mustName(t, "/a/x"), Nonce: optional.Some(uint32(3)), InterestLifetime: 4 * time.Second}
	raw, err := ccnb.TLVCodec{}.EncodeInterest(it)
	require.NoError(t, err)

	loop.Sink() <- face.Frame{FaceID: consumer, Data: raw}

	require.Eventually(t, func() bool {
		return len(producerT.sent) == 1
	}, time.Second, time.Millisecond, "interest must reach the producer through the loop")
}

func TestIoLoopStopIsIdempotentWhenNeverStarted(t *testing.T) {
	e := NewEngine(16)
	loop := NewIoLoop(e)
	assert.NotPanics(t, func() {
		loop.Stop()
		loop.Stop()
	})
}
