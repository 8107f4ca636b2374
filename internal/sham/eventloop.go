package sham

import (
	"net"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/dperis/sham/internal/clock"
	"github.com/dperis/sham/internal/dgram"
	"github.com/dperis/sham/internal/seqnum"
	"github.com/dperis/sham/internal/sleep"
	"github.com/dperis/sham/internal/waiter"
	"github.com/dperis/sham/internal/wire"
)

func addrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

// OpenInitiator drives the SYN_SENT half of the handshake (spec.md section
// 4.6): send SYN, wait for SYN-ACK from peer, send the final ACK. It gives
// up with ErrHandshakeTimeout once HandshakeTimeoutMillis has elapsed
// without a matching SYN-ACK, mirroring the teacher's connect() path but
// collapsed to synchronous polling since there's no listening-socket
// machinery to share the deadline with.
func (c *Connection) OpenInitiator(peer *net.UDPAddr) error {
	c.peer = peer
	c.iss = initiatorISN
	c.state = StateSynSent

	if err := c.sendRaw(wire.FlagSyn, c.iss, nil, false); err != nil {
		return errors.Wrap(err, "sending SYN")
	}

	deadline := clock.Now().Add(clock.Millis(c.cfg.HandshakeTimeoutMillis))
	for {
		if clock.Now() >= deadline {
			return ErrHandshakeTimeout
		}

		pkt, from, err := c.dg.RecvWithDeadline(deadline)
		if err != nil {
			if errors.Is(err, dgram.ErrTimedOut) {
				return ErrHandshakeTimeout
			}
			c.log.WithError(err).Debug("dropping unreadable datagram during handshake")
			continue
		}
		if !addrEqual(from, c.peer) {
			continue
		}
		c.tracer.Received(pktType(pkt.Flags, len(pkt.Payload)), pkt.SeqNum, pkt.AckNum, len(pkt.Payload))

		if !pkt.HasFlag(wire.FlagSyn) || !pkt.HasFlag(wire.FlagAck) {
			continue
		}
		if seqnum.Value(pkt.AckNum) != c.iss.Add(1) {
			continue
		}

		c.irs = seqnum.Value(pkt.SeqNum)
		c.rcv = newRecvWindow(c.cfg, c.irs.Add(1), c.deliver)
		c.snd = newSendWindow(c.cfg, c.iss.Add(1), c.transmitSegment)

		if err := c.sendAckOnly(); err != nil {
			return errors.Wrap(err, "sending handshake ACK")
		}
		c.state = StateEstablished
		c.waiters.Notify(waiter.EventConn)
		return nil
	}
}

// AcceptResponder drives the SYN_RCVD half of the handshake: wait
// indefinitely for a SYN (there is no listen-side timeout, a server has no
// reason to give up waiting for a client), lock onto that peer, answer with
// SYN-ACK, then wait for the final ACK.
func (c *Connection) AcceptResponder() error {
	c.iss = responderISN
	c.state = StateClosed

	for {
		pkt, from, err := c.dg.RecvWithDeadline(clock.Now().Add(clock.Millis(1<<30)))
		if err != nil {
			if errors.Is(err, dgram.ErrTimedOut) {
				continue
			}
			c.log.WithError(err).Debug("dropping unreadable datagram while listening")
			continue
		}

		switch c.state {
		case StateClosed:
			if !pkt.HasFlag(wire.FlagSyn) || pkt.HasFlag(wire.FlagAck) {
				continue // not a bare SYN, ignore
			}
			c.peer = from
			c.tracer.Received(pktType(pkt.Flags, len(pkt.Payload)), pkt.SeqNum, pkt.AckNum, len(pkt.Payload))

			c.irs = seqnum.Value(pkt.SeqNum)
			c.rcv = newRecvWindow(c.cfg, c.irs.Add(1), c.deliver)
			c.snd = newSendWindow(c.cfg, c.iss.Add(1), c.transmitSegment)

			if err := c.sendRaw(wire.FlagSyn|wire.FlagAck, c.iss, nil, false); err != nil {
				return errors.Wrap(err, "sending SYN-ACK")
			}
			c.state = StateSynRcvd

		case StateSynRcvd:
			if !addrEqual(from, c.peer) {
				continue // a stray SYN from elsewhere while mid-handshake
			}
			c.tracer.Received(pktType(pkt.Flags, len(pkt.Payload)), pkt.SeqNum, pkt.AckNum, len(pkt.Payload))
			if !pkt.HasFlag(wire.FlagAck) || seqnum.Value(pkt.AckNum) != c.iss.Add(1) {
				continue
			}
			c.state = StateEstablished
			c.waiters.Notify(waiter.EventConn)
			return nil
		}
	}
}

// recvPump is the sole goroutine besides the event loop itself: it blocks
// on the socket and feeds decoded datagrams into the incoming queue,
// asserting dataWaker so the event loop's Sleeper wakes. This keeps the FSM
// itself single-threaded and linearizable (spec.md section 5), with the
// socket read as the only blocking I/O moved off of it.
func (c *Connection) recvPump() {
	defer close(c.recvDone)
	for {
		select {
		case <-c.recvStop:
			return
		default:
		}

		pkt, from, err := c.dg.RecvWithDeadline(clock.Now().Add(clock.Millis(200)))
		switch {
		case err == nil:
			c.queue.enqueue(incomingDatagram{pkt: pkt, from: from})
			c.dataWaker.Assert()
		case errors.Is(err, dgram.ErrTimedOut):
			continue
		case errors.Is(err, wire.ErrMalformedFrame), errors.Is(err, wire.ErrOversizedPayload):
			c.queue.enqueue(incomingDatagram{from: from, err: err})
			c.dataWaker.Assert()
		default:
			c.queue.enqueue(incomingDatagram{err: ErrIo})
			c.dataWaker.Assert()
			return
		}
	}
}

// Run executes the established-state event loop until the connection
// closes cleanly or fatally. Call it only after a successful
// OpenInitiator/AcceptResponder. It returns nil on a clean four-way close,
// ErrCloseTimeout if the peer never acknowledged the local FIN within the
// retry budget, or the first I/O error encountered.
func (c *Connection) Run() error {
	c.recvStop = make(chan struct{})
	c.recvDone = make(chan struct{})
	go c.recvPump()
	defer func() {
		close(c.recvStop)
		<-c.recvDone
		c.sleeper.Done()
	}()

	for c.state != StateClosed {
		c.pollProducer()

		deadline := c.computeDeadline()
		c.armTimer(deadline)

		id, ok := c.sleeper.Fetch(true)
		c.timer.Stop()
		if !ok {
			continue
		}

		switch id {
		case wakeAbort:
			return c.finish(c.teardownOnAbort())
		case wakeData:
			c.drainQueue()
		case wakeTimeout:
			c.handleTimeout(clock.Now())
		}

		if c.err != nil {
			return c.finish(errors.Wrap(c.err, "sham connection"))
		}
	}
	return c.finish(c.err)
}

// finish notifies waiters that the connection is done, distinguishing a
// clean close (EventHUp) from a fatal one (EventErr), the same readiness
// split cmd/initiator and cmd/responder use to update a connected-state
// gauge without polling Connection.State() themselves.
func (c *Connection) finish(err error) error {
	if err != nil {
		c.waiters.Notify(waiter.EventErr)
	} else {
		c.waiters.Notify(waiter.EventHUp)
	}
	return err
}

// armTimer schedules the single timeout waker for the earliest of the
// retransmit deadline, the producer poll interval, or a pending FIN retry.
func (c *Connection) armTimer(deadline clock.Millis) {
	remaining := deadline - clock.Now()
	if remaining < 0 {
		remaining = 0
	}
	c.timer = sleep.AfterFunc(remaining.Duration(), &c.timeoutWaker)
}

func (c *Connection) computeDeadline() clock.Millis {
	now := clock.Now()
	deadline := now.Add(clock.Millis(c.cfg.ProducerPollMillis))

	if c.snd != nil && !c.snd.empty() {
		if d, ok := c.snd.nextDeadline(); ok && d < deadline {
			deadline = d
		}
	}
	if c.awaitingFinAck() {
		finDeadline := c.finSentAt.Add(clock.Millis(c.cfg.FinRetryTimeoutMillis))
		if finDeadline < deadline {
			deadline = finDeadline
		}
	}
	return deadline
}

// pollProducer drains whatever the producer has ready into the send
// window, stopping at the first block (window full, flow controlled) or
// once the stream is exhausted, in which case it kicks off active close.
func (c *Connection) pollProducer() {
	if c.state != StateEstablished || c.producer == nil {
		return
	}
	for {
		payload, ok, eof := c.producer.NextPayload()
		if eof {
			if err := c.sendFin(false); err != nil {
				c.err = err
				return
			}
			c.armTeardown(clock.Now())
			c.state = StateFinWait
			return
		}
		if !ok {
			return
		}
		enqueued, reason := c.snd.tryEnqueue(clock.Now(), payload)
		if !enqueued {
			if reason == FlowControlled {
				c.log.WithError(ErrFlowBlocked).Debug("producer has more data but the peer's window is full")
			}
			return
		}
	}
}

func (c *Connection) drainQueue() {
	for {
		it, ok := c.queue.dequeue()
		if !ok {
			return
		}
		c.handleDatagram(it)
		if c.err != nil {
			return
		}
	}
}

func (c *Connection) handleDatagram(it incomingDatagram) {
	if it.err != nil {
		if errors.Is(it.err, wire.ErrMalformedFrame) || errors.Is(it.err, wire.ErrOversizedPayload) {
			c.metrics.DropReason("malformed")
			if c.metrics != nil {
				c.metrics.MalformedFrames.Inc()
			}
			return
		}
		c.err = it.err
		return
	}

	pkt := it.pkt
	if !addrEqual(it.from, c.peer) {
		c.log.WithError(ErrPeerMismatch).WithField("from", it.from).Debug("dropping datagram")
		c.metrics.DropReason("peer-mismatch")
		return
	}

	if c.metrics != nil {
		c.metrics.PacketsReceived.Inc()
	}
	c.tracer.Received(pktType(pkt.Flags, len(pkt.Payload)), pkt.SeqNum, pkt.AckNum, len(pkt.Payload))

	now := clock.Now()

	switch c.state {
	case StateEstablished:
		c.handleEstablished(now, pkt)
	case StateFinWait:
		c.handleFinWait(pkt)
	case StateFinWait2:
		c.handleFinWait2(pkt)
	case StateCloseAck:
		c.handleCloseAck(pkt)
	}
}

func (c *Connection) handleEstablished(now clock.Millis, pkt *wire.Packet) {
	c.snd.onAck(now, seqnum.Value(pkt.AckNum), pkt.WindowSize)

	if len(pkt.Payload) > 0 {
		outcome := c.rcv.onData(seqnum.Value(pkt.SeqNum), pkt.Payload)
		if outcome != Delivered && outcome != Buffered && c.metrics != nil {
			c.metrics.DropReason(dropReasonFor(outcome))
		}
		if c.metrics != nil && outcome == Delivered {
			c.metrics.BytesReceived.Add(float64(len(pkt.Payload)))
		}
		if err := c.sendAckOnly(); err != nil {
			c.err = err
			return
		}
	}

	if pkt.HasFlag(wire.FlagFin) {
		if err := c.sendAckOnly(); err != nil {
			c.err = err
			return
		}
		if err := c.sendFin(false); err != nil {
			c.err = err
			return
		}
		c.armTeardown(now)
		c.state = StateCloseAck
	}
}

func dropReasonFor(o RecvOutcome) string {
	switch o {
	case DroppedDuplicate:
		return "duplicate"
	case DroppedNoSpace:
		return "no-space"
	case DroppedSlotsFull:
		return "slots-full"
	default:
		return "unknown"
	}
}

func (c *Connection) handleFinWait(pkt *wire.Packet) {
	if pkt.HasFlag(wire.FlagFin) {
		if err := c.sendAckOnly(); err != nil {
			c.err = err
			return
		}
		c.state = StateClosed
		return
	}
	if pkt.HasFlag(wire.FlagAck) {
		c.state = StateFinWait2
	}
}

func (c *Connection) handleFinWait2(pkt *wire.Packet) {
	if pkt.HasFlag(wire.FlagFin) {
		if err := c.sendAckOnly(); err != nil {
			c.err = err
			return
		}
		c.state = StateClosed
	}
}

func (c *Connection) handleCloseAck(pkt *wire.Packet) {
	if pkt.HasFlag(wire.FlagAck) && !pkt.HasFlag(wire.FlagFin) {
		c.state = StateClosed
	}
}

// handleTimeout is invoked when the timeout waker fires: it may mean a
// retransmission is due, the producer should be polled again, or a FIN
// retry is due or exhausted.
func (c *Connection) handleTimeout(now clock.Millis) {
	if c.snd != nil && c.snd.retransmitTimedOut(now) {
		c.tracer.TimedOut("DATA", 0, 0, 0)
	}

	if !c.awaitingFinAck() {
		return
	}
	if now-c.finSentAt < clock.Millis(c.cfg.FinRetryTimeoutMillis) {
		return
	}

	if c.finAttempts >= c.cfg.FinRetries {
		var merr *multierror.Error
		merr = multierror.Append(merr, errors.Errorf("no ACK of FIN after %d attempts", c.finAttempts))
		c.err = errors.Wrap(multierror.Append(merr, ErrCloseTimeout).ErrorOrNil(), "close timed out")
		c.state = StateClosed
		return
	}

	if err := c.sendFin(true); err != nil {
		c.err = err
		return
	}
	c.finAttempts++
	c.finSentAt = now
}

// teardownOnAbort is invoked when a caller asserts the abort waker through
// Connection.Abort (cmd/initiator and cmd/responder do not call Abort): it
// makes a single best-effort attempt to notify the peer before giving up.
func (c *Connection) teardownOnAbort() error {
	if c.snd != nil && c.state == StateEstablished {
		_ = c.sendFin(false)
	}
	c.state = StateClosed
	return errors.New("sham: connection aborted")
}

// Close releases the underlying datagram socket. It does not perform a
// protocol-level teardown; call Run to completion for that.
func (c *Connection) Close() error {
	return c.dg.Close()
}
