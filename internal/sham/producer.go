package sham

// Producer is the byte-stream source adapter (spec.md's "producer"
// external collaborator: stdin lines in chat mode, a file's contents in
// file mode). Per the Design Notes in spec.md section 9, it must be
// nonblocking from the event loop's point of view: NextPayload never
// blocks, it reports whether a payload happened to be ready yet.
type Producer interface {
	// NextPayload returns the next chunk of the byte stream if one is
	// ready, without blocking. ok is false when nothing is ready *yet*;
	// eof is true once the stream is exhausted and no further payload
	// will ever become available.
	NextPayload() (payload []byte, ok bool, eof bool)
}

// Consumer is the byte-stream sink adapter (stdout in chat mode, a file in
// file mode). Deliver is called with strictly-increasing, gap-free,
// duplicate-free byte runs, exactly as the receive window promises.
type Consumer interface {
	Deliver(b []byte)

	// Close is called once after teardown completes, giving file-mode
	// consumers a chance to flush and compute their digest.
	Close() error
}
