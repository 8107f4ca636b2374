package sham

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/dperis/sham/internal/clock"
	"github.com/dperis/sham/internal/dgram"
	"github.com/dperis/sham/internal/lossy"
	"github.com/dperis/sham/internal/metrics"
	"github.com/dperis/sham/internal/seqnum"
	"github.com/dperis/sham/internal/sleep"
	"github.com/dperis/sham/internal/trace"
	"github.com/dperis/sham/internal/waiter"
	"github.com/dperis/sham/internal/wire"
)

// Role distinguishes the two sides of a SHAM connection. Each gets a fixed
// initial sequence number per spec.md section 4.6, rather than the random
// ISN real TCP picks, since SHAM has no listening-socket reuse to defend
// against.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "responder"
	}
	return "initiator"
}

const (
	initiatorISN = seqnum.Value(50)
	responderISN = seqnum.Value(100)
)

// State is one node of the connection FSM spec.md section 4.6 tabulates.
type State int

const (
	StateClosed State = iota
	StateSynSent
	StateSynRcvd
	StateEstablished
	StateFinWait
	StateFinWait2
	StateCloseAck
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynRcvd:
		return "SYN_RCVD"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait:
		return "FIN_WAIT"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateCloseAck:
		return "CLOSE_ACK"
	case StateClosing:
		return "TIME_WAIT"
	default:
		return "UNKNOWN"
	}
}

// Connection drives one SHAM endpoint's FSM: handshake, established data
// transfer and teardown, over one dgram.Endpoint locked to one peer. It is
// the analog of the teacher's transport/tcp.endpoint, but collapsed to a
// single connection with no accept queue or demultiplexing table, since
// spec.md's Non-goals exclude multiplexing many connections per socket.
type Connection struct {
	role Role
	cfg  Config
	log  *logrus.Entry

	dg      *dgram.Endpoint
	peer    *net.UDPAddr
	loss    *lossy.Policy
	tracer  *trace.Tracer
	metrics *metrics.Collector

	state State
	iss   seqnum.Value
	irs   seqnum.Value

	snd *sendWindow
	rcv *recvWindow

	waiters waiter.Queue

	finSentAt   clock.Millis
	finAttempts int

	producer Producer
	consumer Consumer

	queue        incomingQueue
	sleeper      sleep.Sleeper
	dataWaker    sleep.Waker
	timeoutWaker sleep.Waker
	abortWaker   sleep.Waker
	timer        *sleep.Timer

	recvStop chan struct{}
	recvDone chan struct{}

	err error
}

// NewConnection constructs a role-agnostic Connection. Callers complete the
// handshake with OpenInitiator or AcceptResponder before calling Run.
func NewConnection(role Role, cfg Config, dg *dgram.Endpoint, loss *lossy.Policy, tracer *trace.Tracer, mc *metrics.Collector, log *logrus.Entry) *Connection {
	c := &Connection{
		role:    role,
		cfg:     cfg,
		log:     log,
		dg:      dg,
		loss:    loss,
		tracer:  tracer,
		metrics: mc,
		state:   StateClosed,
	}
	c.sleeper.AddWaker(&c.dataWaker, wakeData)
	c.sleeper.AddWaker(&c.timeoutWaker, wakeTimeout)
	c.sleeper.AddWaker(&c.abortWaker, wakeAbort)
	return c
}

// Wake ids the event loop's Sleeper multiplexes between.
const (
	wakeData = iota
	wakeTimeout
	wakeAbort
)

// Abort asserts the abort waker, breaking the event loop out of its next
// Fetch regardless of what it was waiting for. Safe to call from any
// goroutine, e.g. a signal handler; cmd/initiator and cmd/responder install
// none and never call it.
func (c *Connection) Abort() {
	c.abortWaker.Assert()
}

// Attach wires the byte-stream adapters a connection carries data for. It
// must be called before OpenInitiator/AcceptResponder, since the receive
// window's deliver callback is built at handshake completion time.
func (c *Connection) Attach(p Producer, cons Consumer) {
	c.producer = p
	c.consumer = cons
}

// Waiters returns the queue callers can register on to block until the
// handshake completes (EventConn) or new bytes are delivered (EventIn).
func (c *Connection) Waiters() *waiter.Queue {
	return &c.waiters
}

func (c *Connection) deliver(b []byte) {
	c.consumer.Deliver(b)
	c.waiters.Notify(waiter.EventIn)
}

func (c *Connection) transmitSegment(seq seqnum.Value, payload []byte, retransmission bool) {
	if err := c.sendRaw(wire.FlagAck, seq, payload, retransmission); err != nil && c.err == nil {
		c.err = err
	}
}

// State reports the connection's current FSM state, for callers like the
// responder's accept loop that want to log transitions.
func (c *Connection) State() State {
	return c.state
}

// sendRaw encodes and transmits one packet, piggybacking the receiver's
// current (ack_num, window) the way every SHAM header must. It is the sole
// path to the wire: tracer, metrics and the loss policy all hang off it,
// grounded on the teacher's sender.sendSegment funnelling every transmit
// through one point to keep accounting centralized.
func (c *Connection) sendRaw(flags uint16, seq seqnum.Value, payload []byte, retransmission bool) error {
	ackNum, window := seqnum.Value(0), seqnum.Size(c.cfg.ReceiverBufferSize)
	if c.rcv != nil {
		ackNum, window = c.rcv.getSendParams()
	}

	pkt := &wire.Packet{
		SeqNum:     uint32(seq),
		AckNum:     uint32(ackNum),
		Flags:      flags,
		WindowSize: clampWindow(window),
		Payload:    payload,
	}
	typ := pktType(flags, len(payload))

	if c.loss.ShouldDrop() {
		c.tracer.Dropped(typ, pkt.SeqNum, pkt.AckNum, len(payload))
		c.metrics.DropReason("loss-simulator")
		return nil
	}

	if err := c.dg.Send(wire.Encode(pkt), c.peer); err != nil {
		return err
	}

	if retransmission {
		c.tracer.Retransmitted(typ, pkt.SeqNum, pkt.AckNum, len(payload))
		if c.metrics != nil {
			c.metrics.Retransmissions.Inc()
		}
	} else {
		c.tracer.Sent(typ, pkt.SeqNum, pkt.AckNum, len(payload))
		if c.metrics != nil {
			c.metrics.PacketsSent.Inc()
			c.metrics.BytesSent.Add(float64(len(payload)))
		}
	}
	return nil
}

// sendAckOnly emits a pure control ACK at the sender's current offset, not
// tracked in the unacked-segments buffer. Grounded on the teacher's
// sender.sendAck, which calls sendSegment(nil, flagAck, sndNxt) outside the
// retransmission path entirely.
func (c *Connection) sendAckOnly() error {
	return c.sendRaw(wire.FlagAck, c.snd.nextSeq, nil, false)
}

// sendFin emits a bare FIN at the sender's current offset. Per spec.md
// section 9's design note, FIN and ACK are always emitted as separate
// packets rather than combined into one, even where the FSM table writes
// "Send ACK + Send FIN" as a single transition.
func (c *Connection) sendFin(retransmission bool) error {
	return c.sendRaw(wire.FlagFin, c.snd.nextSeq, nil, retransmission)
}

func clampWindow(w seqnum.Size) uint16 {
	if w > seqnum.Size(^uint16(0)) {
		return ^uint16(0)
	}
	return uint16(w)
}

// armTeardown records that the first FIN was just sent: the close retry
// clock starts counting from now and the retry count from zero. FIN
// retransmissions update finSentAt and finAttempts in handleTimeout instead.
func (c *Connection) armTeardown(now clock.Millis) {
	c.finSentAt = now
	c.finAttempts = 0
}

// awaitingFinAck reports whether c has sent a FIN and the close is not yet
// complete (FIN_WAIT, FIN_WAIT_2 while the peer's FIN is still missing, or
// CLOSE_ACK), the condition the teardown retry rule in spec.md section 4.6
// applies to regardless of which side is closing.
func (c *Connection) awaitingFinAck() bool {
	switch c.state {
	case StateFinWait, StateFinWait2, StateCloseAck:
		return true
	default:
		return false
	}
}
