package buffer

// Prependable is a buffer that grows backwards, that is, more data can be
// prepended to it. SHAM uses it to build the 12-byte header in front of a
// payload without an extra copy: the payload is written to the back of the
// buffer first, then the codec prepends the header fields.
type Prependable struct {
	buf     View
	usedIdx int
}

// NewPrependable allocates a new prependable buffer with the given size and
// copies payload into its tail.
func NewPrependable(size int, payload []byte) Prependable {
	p := Prependable{buf: NewView(size), usedIdx: size - len(payload)}
	copy(p.buf[p.usedIdx:], payload)
	return p
}

// Prepend reserves the requested space in front of the buffer, returning a
// slice that represents the reserved space.
func (p *Prependable) Prepend(size int) []byte {
	if size > p.usedIdx {
		return nil
	}
	p.usedIdx -= size
	return p.buf[p.usedIdx:][:size:size]
}

// View returns the full, contiguous buffer: header followed by payload.
func (p *Prependable) View() View {
	v := p.buf
	v.TrimFront(p.usedIdx)
	return v
}
