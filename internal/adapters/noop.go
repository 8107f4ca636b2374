package adapters

// NoopProducer never has anything ready and never reaches EOF. It's used
// on the side of a one-directional file transfer that only receives: that
// side must not drive an active close just because it has nothing to send.
type NoopProducer struct{}

// NextPayload implements Producer.
func (NoopProducer) NextPayload() ([]byte, bool, bool) {
	return nil, false, false
}

// DiscardConsumer accepts and discards delivered bytes. It's used on the
// sending side of a one-directional file transfer, which isn't expecting
// anything back but still needs a Consumer to satisfy Connection.Attach.
type DiscardConsumer struct{}

// Deliver implements Consumer.
func (DiscardConsumer) Deliver([]byte) {}

// Close implements Consumer.
func (DiscardConsumer) Close() error { return nil }
