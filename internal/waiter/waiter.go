// Package waiter provides the implementation of a wait queue, where
// waiters can be enqueued to be notified when an event of interest
// happens.
//
// SHAM uses a Queue on its Connection to let a caller block until the
// handshake completes (EventConn), until new delivered bytes are available
// to a chat/file consumer (EventIn), or until the connection closes
// (EventHUp) or fails (EventErr), the same role
// the teacher's endpoint gives it for readability notifications.
package waiter

import (
	"sync"

	"github.com/dperis/sham/internal/ilist"
)

// EventMask represents io events, with the same meaning as in the poll()
// syscall.
type EventMask uint16

// Events that waiters can wait on.
const (
	EventIn   EventMask = 0x01 // data became available
	EventErr  EventMask = 0x08 // the connection failed
	EventHUp  EventMask = 0x10 // the connection closed
	EventConn EventMask = 0x20 // the handshake completed
)

// EntryCallback provides a notify callback.
type EntryCallback interface {
	// Callback is called when the waiter entry is notified. It must do
	// minimal work and must not call any method on the queue itself,
	// since the queue is locked while the callback runs.
	Callback(e *Entry)
}

// Entry represents a waiter that can be added to a wait queue. It can
// only be in one queue at a time and is added "intrusively", with no
// extra allocation.
type Entry struct {
	Context interface{}
	Callback EntryCallback

	mask EventMask
	ilist.Entry
}

type channelCallback struct{}

func (*channelCallback) Callback(e *Entry) {
	ch := e.Context.(chan struct{})
	select {
	case ch <- struct{}{}:
	default:
	}
}

// NewChannelEntry initializes a new Entry that does a non-blocking write
// to a struct{} channel when the callback runs. If c is nil, a new
// buffered channel is allocated.
func NewChannelEntry(c chan struct{}) (Entry, chan struct{}) {
	if c == nil {
		c = make(chan struct{}, 1)
	}
	return Entry{Context: c, Callback: &channelCallback{}}, c
}

// Queue is a wait queue where waiters can register and notifiers can wake
// them when events happen. The zero value is an empty queue ready to use.
type Queue struct {
	list ilist.List
	mu   sync.RWMutex
}

// EventRegister adds e to q; e is notified when any event in mask occurs.
func (q *Queue) EventRegister(e *Entry, mask EventMask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e.mask = mask
	q.list.PushBack(e)
}

// EventUnregister removes e from q.
func (q *Queue) EventUnregister(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.list.Remove(e)
}

// Notify wakes every registered waiter whose mask intersects mask.
func (q *Queue) Notify(mask EventMask) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for it := q.list.Front(); it != nil; it = it.Next() {
		e := it.(*Entry)
		if mask&e.mask != 0 {
			e.Callback.Callback(e)
		}
	}
}
