// Package wire implements the SHAM packet wire format: a fixed 12-byte
// header in network byte order followed by 0..1024 payload bytes.
//
// Grounded on the teacher's header/tcp.go, which decodes a TCP header by
// indexing fixed byte offsets with encoding/binary.BigEndian; SHAM's header
// is smaller and has no variable-length options, so decoding is a single
// pass rather than the teacher's offset-driven option scan.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/dperis/sham/internal/buffer"
)

// Field flags, matching spec.md section 3.
const (
	FlagSyn uint16 = 0x1
	FlagAck uint16 = 0x2
	FlagFin uint16 = 0x4
)

const (
	offSeqNum  = 0
	offAckNum  = 4
	offFlags   = 8
	offWindow  = 10
	HeaderSize = 12

	// MaxPayloadSize is the largest payload SHAM allows in one packet.
	MaxPayloadSize = 1024
)

// ErrMalformedFrame is returned when a datagram is shorter than the fixed
// header.
var ErrMalformedFrame = errors.New("sham: malformed frame")

// ErrOversizedPayload is returned when a datagram's payload exceeds
// MaxPayloadSize.
var ErrOversizedPayload = errors.New("sham: oversized payload")

// Packet is a decoded SHAM packet: header fields plus payload.
type Packet struct {
	SeqNum     uint32
	AckNum     uint32
	Flags      uint16
	WindowSize uint16
	Payload    []byte
}

// HasFlag reports whether the given flag bit is set.
func (p *Packet) HasFlag(flag uint16) bool {
	return p.Flags&flag != 0
}

// Encode serializes p as [header || payload] in network byte order. The
// codec never allocates beyond len(header)+len(payload).
func Encode(p *Packet) []byte {
	pre := buffer.NewPrependable(HeaderSize+len(p.Payload), p.Payload)
	h := pre.Prepend(HeaderSize)
	binary.BigEndian.PutUint32(h[offSeqNum:], p.SeqNum)
	binary.BigEndian.PutUint32(h[offAckNum:], p.AckNum)
	binary.BigEndian.PutUint16(h[offFlags:], p.Flags)
	binary.BigEndian.PutUint16(h[offWindow:], p.WindowSize)
	return pre.View()
}

// Decode parses a raw datagram into a Packet. It fails with
// ErrMalformedFrame when the datagram is shorter than HeaderSize, and with
// ErrOversizedPayload when the inferred payload length exceeds
// MaxPayloadSize. Decode never allocates beyond the received buffer: the
// returned Payload aliases b.
func Decode(b []byte) (*Packet, error) {
	if len(b) < HeaderSize {
		return nil, ErrMalformedFrame
	}

	payloadLen := len(b) - HeaderSize
	if payloadLen > MaxPayloadSize {
		return nil, ErrOversizedPayload
	}

	p := &Packet{
		SeqNum:     binary.BigEndian.Uint32(b[offSeqNum:]),
		AckNum:     binary.BigEndian.Uint32(b[offAckNum:]),
		Flags:      binary.BigEndian.Uint16(b[offFlags:]),
		WindowSize: binary.BigEndian.Uint16(b[offWindow:]),
	}
	if payloadLen > 0 {
		p.Payload = b[HeaderSize:]
	}
	return p, nil
}
