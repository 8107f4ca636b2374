package sham

import "github.com/dperis/sham/internal/wire"

// pktType classifies a decoded/outgoing packet into the trace vocabulary
// spec.md section 6 names: SYN, SYN-ACK, ACK, FIN, DATA.
func pktType(flags uint16, payloadLen int) string {
	syn := flags&wire.FlagSyn != 0
	fin := flags&wire.FlagFin != 0
	ack := flags&wire.FlagAck != 0

	switch {
	case syn && ack:
		return "SYN-ACK"
	case syn:
		return "SYN"
	case fin:
		return "FIN"
	case payloadLen > 0:
		return "DATA"
	default:
		return "ACK"
	}
}
