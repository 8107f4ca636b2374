// Package seqnum defines the types and arithmetic used to work with the
// sequence numbers of a SHAM connection's byte stream.
//
// The operations here assume sequence numbers never wrap during the
// lifetime of a connection (spec's stated non-goal); the modular arithmetic
// is still correct should a wrap occur, it is just never exercised by
// SHAM's own tests.
package seqnum

// Value represents the value of a sequence number. It is the byte offset of
// a particular byte in the stream.
type Value uint32

// Size represents the size of a sequence number window, i.e. a count of
// bytes, as opposed to an absolute offset.
type Size uint32

// Add adds the given delta to v and returns the result.
func (v Value) Add(delta Size) Value {
	return v + Value(delta)
}

// Size returns the number of bytes between v and other, i.e. other - v,
// using sequence-number (wraparound-safe) arithmetic.
func (v Value) Size(other Value) Size {
	return Size(other - v)
}

// LessThan checks if v is before other in the sequence space, accounting
// for wraparound.
func (v Value) LessThan(other Value) bool {
	return int32(v-other) < 0
}

// LessThanEq checks if v is before or equal to other in the sequence space.
func (v Value) LessThanEq(other Value) bool {
	return v == other || v.LessThan(other)
}
