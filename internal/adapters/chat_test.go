package adapters

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatProducerSplitsLinesWithTerminator(t *testing.T) {
	in := strings.NewReader("hello\nworld\n")
	p := NewChatProducer(in)

	var got [][]byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		payload, ok, eof := p.NextPayload()
		require.False(t, eof)
		if ok {
			got = append(got, payload)
			continue
		}
		time.Sleep(time.Millisecond)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "hello\x00", string(got[0]))
	assert.Equal(t, "world\x00", string(got[1]))
}

func TestChatProducerReportsEOFAfterAllLinesDrained(t *testing.T) {
	in := strings.NewReader("only\n")
	p := NewChatProducer(in)

	deadline := time.Now().Add(2 * time.Second)
	var sawLine bool
	for time.Now().Before(deadline) {
		payload, ok, eof := p.NextPayload()
		if ok {
			sawLine = true
			assert.Equal(t, "only\x00", string(payload))
			continue
		}
		if eof {
			require.True(t, sawLine, "must drain the buffered line before eof is observed")
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for eof")
}

func TestChatConsumerSplitsOnTerminatorAcrossDeliverCalls(t *testing.T) {
	var buf bytes.Buffer
	c := NewChatConsumer(&buf)

	c.Deliver([]byte("hel"))
	c.Deliver([]byte("lo\x00wor"))
	c.Deliver([]byte("ld\x00"))

	assert.Equal(t, "peer> hello\npeer> world\n", buf.String())
}

func TestChatConsumerHoldsPartialUntilTerminator(t *testing.T) {
	var buf bytes.Buffer
	c := NewChatConsumer(&buf)

	c.Deliver([]byte("no terminator yet"))
	assert.Empty(t, buf.String())

	c.Deliver([]byte("\x00"))
	assert.Equal(t, "peer> no terminator yet\n", buf.String())
}
