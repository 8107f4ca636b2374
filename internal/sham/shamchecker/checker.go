// Package shamchecker provides fluent packet-assertion helpers for tests,
// adapted from the teacher's checker package: a Packet-level checker plus a
// set of composable field checkers, rather than one hand-rolled comparison
// per test.
package shamchecker

import (
	"testing"

	"github.com/dperis/sham/internal/wire"
)

// Checker asserts a property of a decoded packet.
type Checker func(*testing.T, *wire.Packet)

// Packet decodes b and runs every checker against it, the way the
// teacher's checker.TCP decodes a segment once and fans it out to its
// TransportCheckers.
func Packet(t *testing.T, b []byte, checkers ...Checker) *wire.Packet {
	t.Helper()
	pkt, err := wire.Decode(b)
	if err != nil {
		t.Fatalf("decoding packet: %v", err)
	}
	for _, c := range checkers {
		c(t, pkt)
	}
	return pkt
}

// SeqNum checks the packet's sequence number.
func SeqNum(want uint32) Checker {
	return func(t *testing.T, p *wire.Packet) {
		if p.SeqNum != want {
			t.Fatalf("bad seq_num: got %d, want %d", p.SeqNum, want)
		}
	}
}

// AckNum checks the packet's acknowledgement number.
func AckNum(want uint32) Checker {
	return func(t *testing.T, p *wire.Packet) {
		if p.AckNum != want {
			t.Fatalf("bad ack_num: got %d, want %d", p.AckNum, want)
		}
	}
}

// Window checks the packet's advertised window.
func Window(want uint16) Checker {
	return func(t *testing.T, p *wire.Packet) {
		if p.WindowSize != want {
			t.Fatalf("bad window: got %d, want %d", p.WindowSize, want)
		}
	}
}

// Flags checks that exactly the given flag bits are set.
func Flags(want uint16) Checker {
	return func(t *testing.T, p *wire.Packet) {
		if p.Flags != want {
			t.Fatalf("bad flags: got %#x, want %#x", p.Flags, want)
		}
	}
}

// SYN checks that the SYN flag is set.
func SYN() Checker {
	return func(t *testing.T, p *wire.Packet) {
		if !p.HasFlag(wire.FlagSyn) {
			t.Fatalf("expected SYN flag set, flags=%#x", p.Flags)
		}
	}
}

// ACK checks that the ACK flag is set.
func ACK() Checker {
	return func(t *testing.T, p *wire.Packet) {
		if !p.HasFlag(wire.FlagAck) {
			t.Fatalf("expected ACK flag set, flags=%#x", p.Flags)
		}
	}
}

// FIN checks that the FIN flag is set.
func FIN() Checker {
	return func(t *testing.T, p *wire.Packet) {
		if !p.HasFlag(wire.FlagFin) {
			t.Fatalf("expected FIN flag set, flags=%#x", p.Flags)
		}
	}
}

// Payload checks the packet's exact payload bytes.
func Payload(want []byte) Checker {
	return func(t *testing.T, p *wire.Packet) {
		if string(p.Payload) != string(want) {
			t.Fatalf("bad payload: got %q, want %q", p.Payload, want)
		}
	}
}

// PayloadLen checks the packet's payload length.
func PayloadLen(want int) Checker {
	return func(t *testing.T, p *wire.Packet) {
		if len(p.Payload) != want {
			t.Fatalf("bad payload length: got %d, want %d", len(p.Payload), want)
		}
	}
}
