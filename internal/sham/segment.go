package sham

import (
	"github.com/dperis/sham/internal/clock"
	"github.com/dperis/sham/internal/ilist"
	"github.com/dperis/sham/internal/seqnum"
)

// sentSegment is one entry of the sender's unacknowledged-segments buffer
// (spec.md section 3, "Sender-side entities"). It is held in an intrusive
// list, the same approach the teacher's sender takes with its
// segmentList/ilist.Entry pair, so segments can be appended and removed in
// O(1) with no extra allocation.
type sentSegment struct {
	ilist.Entry

	seq           seqnum.Value
	payload       []byte
	sentTime      clock.Millis
	retransmitted bool
}

func (s *sentSegment) len() seqnum.Size {
	return seqnum.Size(len(s.payload))
}

// end returns the sequence number just past this segment's payload.
func (s *sentSegment) end() seqnum.Value {
	return s.seq.Add(s.len())
}

// segmentList is a typed view over ilist.List holding *sentSegment
// entries in strictly increasing, contiguous sequence order.
type segmentList struct {
	list ilist.List
}

func (l *segmentList) pushBack(s *sentSegment) {
	l.list.PushBack(s)
}

func (l *segmentList) front() *sentSegment {
	e := l.list.Front()
	if e == nil {
		return nil
	}
	return e.(*sentSegment)
}

func (l *segmentList) remove(s *sentSegment) {
	l.list.Remove(s)
}

func (l *segmentList) empty() bool {
	return l.list.Empty()
}
