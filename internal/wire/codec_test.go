package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dperis/sham/internal/sham/shamchecker"
	"github.com/dperis/sham/internal/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := &wire.Packet{
		SeqNum:     1,
		AckNum:     5,
		Flags:      wire.FlagAck,
		WindowSize: 8192,
		Payload:    []byte("abc\x00"),
	}

	raw := wire.Encode(p)
	assert.Equal(t, wire.HeaderSize+len(p.Payload), len(raw))

	shamchecker.Packet(t, raw,
		shamchecker.SeqNum(1),
		shamchecker.AckNum(5),
		shamchecker.Flags(wire.FlagAck),
		shamchecker.ACK(),
		shamchecker.Window(8192),
		shamchecker.Payload(p.Payload),
		shamchecker.PayloadLen(len(p.Payload)),
	)
}

func TestDecodeControlPacketHasNoPayload(t *testing.T) {
	p := &wire.Packet{SeqNum: 50, Flags: wire.FlagSyn}
	raw := wire.Encode(p)
	assert.Equal(t, wire.HeaderSize, len(raw))

	got := shamchecker.Packet(t, raw,
		shamchecker.SeqNum(50),
		shamchecker.SYN(),
		shamchecker.PayloadLen(0),
	)
	assert.Nil(t, got.Payload)
	assert.False(t, got.HasFlag(wire.FlagAck))
}

func TestDecodeMalformedFrame(t *testing.T) {
	_, err := wire.Decode(make([]byte, wire.HeaderSize-1))
	assert.ErrorIs(t, err, wire.ErrMalformedFrame)
}

func TestDecodeOversizedPayload(t *testing.T) {
	_, err := wire.Decode(make([]byte, wire.HeaderSize+wire.MaxPayloadSize+1))
	assert.ErrorIs(t, err, wire.ErrOversizedPayload)
}
