package sham

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dperis/sham/internal/adapters"
	"github.com/dperis/sham/internal/dgram"
)

// memProducer feeds a fixed list of chunks, reporting eof once exhausted.
type memProducer struct {
	chunks [][]byte
	i      int
}

func (p *memProducer) NextPayload() ([]byte, bool, bool) {
	if p.i >= len(p.chunks) {
		return nil, false, true
	}
	b := p.chunks[p.i]
	p.i++
	return b, true, false
}

// memConsumer collects delivered bytes in order.
type memConsumer struct {
	mu  sync.Mutex
	got [][]byte
}

func (c *memConsumer) Deliver(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	c.got = append(c.got, cp)
}

func (c *memConsumer) Close() error { return nil }

func (c *memConsumer) all() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, b := range c.got {
		out = append(out, b...)
	}
	return out
}

func newLoopbackEndpoint(t *testing.T) *dgram.Endpoint {
	t.Helper()
	ep, err := dgram.Listen(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { ep.Close() })
	return ep
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// TestHandshakeAndDataTransfer exercises a full SYN/SYN-ACK/ACK handshake
// over real loopback UDP sockets, a one-directional byte transfer, and a
// four-way close, between two real Connections.
func TestHandshakeAndDataTransfer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HandshakeTimeoutMillis = 2000
	cfg.ProducerPollMillis = 20
	cfg.FinRetryTimeoutMillis = 200
	cfg.FinRetries = 5

	initEp := newLoopbackEndpoint(t)
	respEp := newLoopbackEndpoint(t)

	initiator := NewConnection(RoleInitiator, cfg, initEp, nil, nil, nil, quietLog())
	responder := NewConnection(RoleResponder, cfg, respEp, nil, nil, nil, quietLog())

	prod := &memProducer{chunks: [][]byte{[]byte("hello, "), []byte("sham")}}
	initCons := &memConsumer{}
	respCons := &memConsumer{}

	initiator.Attach(prod, initCons)
	// The responder only receives in this test; a producer that reports
	// immediate EOF would send its own FIN before the initiator's data
	// arrives, since pollProducer (eventloop.go) checks for EOF before any
	// DATA is dispatched. adapters.NoopProducer never does that.
	responder.Attach(adapters.NoopProducer{}, respCons)

	var wg sync.WaitGroup
	wg.Add(1)
	var acceptErr error
	go func() {
		defer wg.Done()
		acceptErr = responder.AcceptResponder()
	}()

	openErr := initiator.OpenInitiator(respEp.LocalAddr())
	require.NoError(t, openErr)
	wg.Wait()
	require.NoError(t, acceptErr)

	assert.Equal(t, StateEstablished, initiator.State())
	assert.Equal(t, StateEstablished, responder.State())

	done := make(chan struct{}, 2)
	var initRunErr, respRunErr error
	go func() {
		initRunErr = initiator.Run()
		done <- struct{}{}
	}()
	go func() {
		respRunErr = responder.Run()
		done <- struct{}{}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first side to close")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for second side to close")
	}

	require.NoError(t, initRunErr)
	require.NoError(t, respRunErr)
	assert.Equal(t, "hello, sham", string(respCons.all()))
}

// TestOpenInitiatorTimesOutWithNoResponder checks the handshake gives up
// with ErrHandshakeTimeout when nothing answers the SYN.
func TestOpenInitiatorTimesOutWithNoResponder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HandshakeTimeoutMillis = 150

	initEp := newLoopbackEndpoint(t)
	deadEp := newLoopbackEndpoint(t)
	deadPeer := deadEp.LocalAddr()
	deadEp.Close()

	initiator := NewConnection(RoleInitiator, cfg, initEp, nil, nil, nil, quietLog())
	initiator.Attach(&memProducer{}, &memConsumer{})

	err := initiator.OpenInitiator(deadPeer)
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
}
