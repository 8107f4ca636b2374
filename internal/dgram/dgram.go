// Package dgram implements spec.md section 4.7's Datagram I/O: a
// best-effort send and a deadline-capped receive over the underlying
// datagram service. SHAM rides directly on the kernel's UDP socket rather
// than the teacher's tun-device/NIC layer, since a single peer-to-peer
// connection has no routing or multi-protocol demultiplexing to do.
package dgram

import (
	"errors"
	"net"

	pkgerrors "github.com/pkg/errors"

	"github.com/dperis/sham/internal/clock"
	"github.com/dperis/sham/internal/wire"
)

// ErrTimedOut is returned by RecvWithDeadline when no datagram arrives
// before the deadline.
var ErrTimedOut = errors.New("sham: recv timed out")

// Endpoint is a bound UDP socket used as SHAM's datagram service.
type Endpoint struct {
	conn *net.UDPConn
}

// Listen binds a UDP socket to laddr. Pass an ":0" port to get an
// ephemeral local port, which is what the Initiator does; the Responder
// passes its configured bind port.
func Listen(laddr *net.UDPAddr) (*Endpoint, error) {
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "binding datagram socket")
	}
	return &Endpoint{conn: conn}, nil
}

// LocalAddr returns the socket's bound local address.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// Send is best-effort: a dropped datagram is not reported as an error, it
// simply never arrives. Only a local socket failure returns an error.
func (e *Endpoint) Send(b []byte, peer *net.UDPAddr) error {
	_, err := e.conn.WriteToUDP(b, peer)
	if err != nil {
		return pkgerrors.Wrap(err, "sending datagram")
	}
	return nil
}

// RecvWithDeadline blocks for a datagram until deadline. It returns
// ErrTimedOut if nothing arrives in time, or the decoded packet and its
// source address otherwise. Decode failures (MalformedFrame,
// OversizedPayload) are returned as-is so the caller can log and drop.
func (e *Endpoint) RecvWithDeadline(deadline clock.Millis) (*wire.Packet, *net.UDPAddr, error) {
	if err := e.conn.SetReadDeadline(clock.AbsoluteTime(deadline)); err != nil {
		return nil, nil, pkgerrors.Wrap(err, "setting read deadline")
	}

	buf := make([]byte, wire.HeaderSize+wire.MaxPayloadSize)
	n, from, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil, ErrTimedOut
		}
		return nil, nil, pkgerrors.Wrap(err, "receiving datagram")
	}

	p, err := wire.Decode(buf[:n])
	if err != nil {
		return nil, from, err
	}
	return p, from, nil
}

// Close releases the underlying socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}
