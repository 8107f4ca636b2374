// Package buffer provides small, allocation-conscious byte buffer helpers
// used by the wire codec.
//
// Adapted from the teacher's buffer package: the original also exposed a
// VectorisedView for scatter-gather across several non-contiguous Views,
// which existed to let IP assemble a packet from link, network and
// transport headers without copying. SHAM packets carry at most one
// contiguous payload (<=1024 bytes) and never fragment across Views, so
// that type is dropped here; View and Prependable carry over unchanged in
// spirit.
package buffer

// View is a slice of a buffer, with convenience methods.
type View []byte

// NewView allocates a new buffer and returns an initialized view that
// covers the whole buffer.
func NewView(size int) View {
	return make(View, size)
}

// TrimFront removes the first "count" bytes from the visible section of
// the buffer.
func (v *View) TrimFront(count int) {
	*v = (*v)[count:]
}
