package sham

import (
	"net"
	"sync"

	"github.com/dperis/sham/internal/wire"
)

// incomingDatagram is one entry handed from the background recv goroutine
// to the event loop.
type incomingDatagram struct {
	pkt  *wire.Packet
	from *net.UDPAddr
	err  error
}

// incomingQueue is a small thread-safe FIFO, grounded on the teacher's
// segmentQueue (enqueue from the NIC's dispatch goroutine, dequeue from
// protocolListenLoop) adapted to hold decoded SHAM datagrams instead of
// TCP segments.
type incomingQueue struct {
	mu    sync.Mutex
	items []incomingDatagram
}

func (q *incomingQueue) enqueue(it incomingDatagram) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
}

func (q *incomingQueue) dequeue() (incomingDatagram, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return incomingDatagram{}, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it, true
}
