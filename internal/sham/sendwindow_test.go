package sham

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dperis/sham/internal/clock"
	"github.com/dperis/sham/internal/seqnum"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.WindowSize = 4
	cfg.ReceiverBufferSize = 4096
	return cfg
}

func TestSendWindowTryEnqueueRespectsWindowSize(t *testing.T) {
	cfg := testConfig()
	var sent int
	snd := newSendWindow(cfg, seqnum.Value(100), func(seqnum.Value, []byte, bool) { sent++ })

	for i := 0; i < cfg.WindowSize; i++ {
		ok, _ := snd.tryEnqueue(clock.Now(), []byte("x"))
		require.True(t, ok)
	}

	ok, reason := snd.tryEnqueue(clock.Now(), []byte("x"))
	assert.False(t, ok)
	assert.Equal(t, WindowFull, reason)
	assert.Equal(t, cfg.WindowSize, sent)
}

func TestSendWindowTryEnqueueRespectsFlowControl(t *testing.T) {
	cfg := testConfig()
	snd := newSendWindow(cfg, seqnum.Value(0), func(seqnum.Value, []byte, bool) {})
	snd.peerWindow = 4

	ok, _ := snd.tryEnqueue(clock.Now(), []byte("abcd"))
	require.True(t, ok)

	ok, reason := snd.tryEnqueue(clock.Now(), []byte("e"))
	assert.False(t, ok)
	assert.Equal(t, FlowControlled, reason)
}

func TestSendWindowOnAckSlidesCumulative(t *testing.T) {
	cfg := testConfig()
	snd := newSendWindow(cfg, seqnum.Value(0), func(seqnum.Value, []byte, bool) {})

	snd.tryEnqueue(clock.Now(), []byte("aaaa"))
	snd.tryEnqueue(clock.Now(), []byte("bbbb"))
	snd.tryEnqueue(clock.Now(), []byte("cccc"))

	snd.peerWindow = seqnum.Size(cfg.ReceiverBufferSize)
	snd.onAck(clock.Now(), seqnum.Value(8), uint16(cfg.ReceiverBufferSize))

	assert.Equal(t, seqnum.Value(8), snd.lastByteAcked)
	assert.Equal(t, 1, snd.count)
}

func TestSendWindowOnAckIgnoresStaleAck(t *testing.T) {
	cfg := testConfig()
	snd := newSendWindow(cfg, seqnum.Value(0), func(seqnum.Value, []byte, bool) {})
	snd.tryEnqueue(clock.Now(), []byte("aaaa"))
	snd.onAck(clock.Now(), seqnum.Value(4), uint16(cfg.ReceiverBufferSize))

	before := snd.lastByteAcked
	snd.onAck(clock.Now(), seqnum.Value(0), uint16(cfg.ReceiverBufferSize))
	assert.Equal(t, before, snd.lastByteAcked)
}

func TestSendWindowRetransmitTimedOutDoublesRTO(t *testing.T) {
	cfg := testConfig()
	cfg.InitialRTOMillis = 100
	cfg.MaxRTOMillis = 5000

	var retransmitted int
	snd := newSendWindow(cfg, seqnum.Value(0), func(_ seqnum.Value, _ []byte, retransmission bool) {
		if retransmission {
			retransmitted++
		}
	})
	snd.tryEnqueue(clock.Now(), []byte("a"))

	seg := snd.segments.front()
	seg.sentTime = clock.Now() - clock.Millis(200)

	sentAgain := snd.retransmitTimedOut(clock.Now())
	assert.True(t, sentAgain)
	assert.Equal(t, 1, retransmitted)
	assert.Equal(t, clock.Millis(200), snd.rto)
}

func TestSendWindowRetransmitTimedOutNoop(t *testing.T) {
	cfg := testConfig()
	snd := newSendWindow(cfg, seqnum.Value(0), func(seqnum.Value, []byte, bool) {})
	snd.tryEnqueue(clock.Now(), []byte("a"))

	sentAgain := snd.retransmitTimedOut(clock.Now())
	assert.False(t, sentAgain)
}

func TestSendWindowUpdateRTOClampsToBounds(t *testing.T) {
	cfg := testConfig()
	cfg.MinRTOMillis = 100
	cfg.MaxRTOMillis = 500
	snd := newSendWindow(cfg, seqnum.Value(0), func(seqnum.Value, []byte, bool) {})

	snd.updateRTO(clock.Millis(1))
	assert.GreaterOrEqual(t, int64(snd.rto), cfg.MinRTOMillis)

	snd.updateRTO(clock.Millis(10000))
	assert.LessOrEqual(t, int64(snd.rto), cfg.MaxRTOMillis)
}

func TestSendWindowEmpty(t *testing.T) {
	cfg := testConfig()
	snd := newSendWindow(cfg, seqnum.Value(0), func(seqnum.Value, []byte, bool) {})
	assert.True(t, snd.empty())
	snd.tryEnqueue(clock.Now(), []byte("a"))
	assert.False(t, snd.empty())
}
