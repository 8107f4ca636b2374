package sham

import "github.com/dperis/sham/internal/seqnum"

// RecvOutcome is the result of feeding one data segment to the receive
// window, per on_data in spec.md section 4.4.
type RecvOutcome int

const (
	Delivered RecvOutcome = iota
	Buffered
	DroppedDuplicate
	DroppedNoSpace
	DroppedSlotsFull
)

func (o RecvOutcome) String() string {
	switch o {
	case Delivered:
		return "Delivered"
	case Buffered:
		return "Buffered"
	case DroppedDuplicate:
		return "Dropped(Duplicate)"
	case DroppedNoSpace:
		return "Dropped(NoSpace)"
	case DroppedSlotsFull:
		return "Dropped(SlotsFull)"
	default:
		return "Unknown"
	}
}

type recvSlot struct {
	used    bool
	seq     seqnum.Value
	payload []byte
}

// recvWindow is the receiver's reassembly buffer: the in-order delivery
// cursor, a fixed set of out-of-order slots, and the buffer accounting
// that drives the advertised window (spec.md section 4.4). It mirrors the
// teacher's receiver struct (rcvNxt, pendingRcvdSegments, pendingBufUsed/
// pendingBufSize) but delivers whole in-order byte runs directly to a
// consumer callback instead of queuing segments for a later Read call,
// since SHAM has exactly one stream and one consumer.
type recvWindow struct {
	cfg     Config
	rcvNext seqnum.Value

	bufferAvailable seqnum.Size
	slots           []recvSlot

	deliver func([]byte)
}

func newRecvWindow(cfg Config, irs seqnum.Value, deliver func([]byte)) *recvWindow {
	return &recvWindow{
		cfg:             cfg,
		rcvNext:         irs,
		bufferAvailable: seqnum.Size(cfg.ReceiverBufferSize),
		slots:           make([]recvSlot, cfg.MaxBufferPackets),
		deliver:         deliver,
	}
}

// onData implements on_data from spec.md section 4.4.
func (r *recvWindow) onData(seq seqnum.Value, payload []byte) RecvOutcome {
	if seq == r.rcvNext {
		r.deliver(payload)
		r.rcvNext = r.rcvNext.Add(seqnum.Size(len(payload)))
		r.drainContiguous()
		return Delivered
	}

	if seq.LessThan(r.rcvNext) {
		return DroppedDuplicate
	}

	for i := range r.slots {
		if r.slots[i].used && r.slots[i].seq == seq {
			return DroppedDuplicate
		}
	}

	if seqnum.Size(len(payload)) > r.bufferAvailable {
		return DroppedNoSpace
	}

	idx := r.freeSlot()
	if idx < 0 {
		return DroppedSlotsFull
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)
	r.slots[idx] = recvSlot{used: true, seq: seq, payload: cp}
	r.bufferAvailable -= seqnum.Size(len(payload))
	return Buffered
}

// drainContiguous delivers any buffered slots that have become the new
// in-order front, iteratively, as required by on_data's Delivered case.
func (r *recvWindow) drainContiguous() {
	for {
		idx := r.slotFor(r.rcvNext)
		if idx < 0 {
			return
		}
		slot := r.slots[idx]
		r.deliver(slot.payload)
		r.rcvNext = r.rcvNext.Add(seqnum.Size(len(slot.payload)))
		r.bufferAvailable += seqnum.Size(len(slot.payload))
		r.slots[idx] = recvSlot{}
	}
}

func (r *recvWindow) slotFor(seq seqnum.Value) int {
	for i := range r.slots {
		if r.slots[i].used && r.slots[i].seq == seq {
			return i
		}
	}
	return -1
}

func (r *recvWindow) freeSlot() int {
	for i := range r.slots {
		if !r.slots[i].used {
			return i
		}
	}
	return -1
}

// currentWindow returns buffer_available for unsolicited window probes.
func (r *recvWindow) currentWindow() seqnum.Size {
	return r.bufferAvailable
}

// getSendParams returns the (ack_num, window) pair every outgoing header
// carries, grounded on the teacher's sender.sendSegment calling
// ep.rcv.getSendParams() to fill in piggybacked ACK fields.
func (r *recvWindow) getSendParams() (seqnum.Value, seqnum.Size) {
	return r.rcvNext, r.bufferAvailable
}
