// Package sleep provides a lightweight waker/sleeper pair used to build
// SHAM's single-threaded event loop (spec.md section 4.8): the loop blocks
// on a Sleeper.Fetch call that wakes as soon as any registered Waker is
// asserted, whether that's a datagram arrival, a timer expiry (RTO,
// producer poll interval or FIN retry), or an abort request.
//
// This mirrors the teacher's usage in transport/tcp/accept.go
// (protocolListenLoop, which registers a notificationWaker and a
// newSegmentWaker on a Sleeper and dispatches on whichever fires first).
// The teacher's own sleep.go was not present in the retrieval pack; this
// implementation reproduces the behavior its sleep_test.go exercises using
// plain channels and mutexes rather than the lock-free atomic tricks of
// the original gVisor-derived package.
package sleep

import (
	"sync"
	"time"
)

// Waker is a single-bit, edge-triggered notification. Asserting an
// already-asserted Waker is a no-op; asserting one that a Sleeper is
// currently blocked on wakes it immediately.
type Waker struct {
	mu       sync.Mutex
	asserted bool
	doorbell chan struct{}
}

// Assert marks w as asserted and wakes any Sleeper currently blocked
// waiting on it.
func (w *Waker) Assert() {
	w.mu.Lock()
	w.asserted = true
	db := w.doorbell
	w.mu.Unlock()

	if db != nil {
		select {
		case db <- struct{}{}:
		default:
		}
	}
}

// Clear clears w's asserted state without waking anyone.
func (w *Waker) Clear() {
	w.mu.Lock()
	w.asserted = false
	w.mu.Unlock()
}

// IsAsserted reports w's current asserted state without consuming it.
func (w *Waker) IsAsserted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.asserted
}

// tryConsume atomically checks and clears the asserted state, returning
// whether it was set.
func (w *Waker) tryConsume() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.asserted {
		w.asserted = false
		return true
	}
	return false
}

type wakerEntry struct {
	w  *Waker
	id int
}

// Sleeper multiplexes a fixed set of Wakers. The zero value is an empty
// Sleeper ready to use.
type Sleeper struct {
	mu       sync.Mutex
	wakers   []wakerEntry
	doorbell chan struct{}
}

func (s *Sleeper) ensureDoorbell() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doorbell == nil {
		s.doorbell = make(chan struct{}, 1)
	}
	return s.doorbell
}

// AddWaker registers w with s under the given id, which Fetch returns when
// w fires.
func (s *Sleeper) AddWaker(w *Waker, id int) {
	db := s.ensureDoorbell()

	w.mu.Lock()
	w.doorbell = db
	w.mu.Unlock()

	s.mu.Lock()
	s.wakers = append(s.wakers, wakerEntry{w: w, id: id})
	s.mu.Unlock()
}

// Fetch returns the id of the first asserted waker it finds. If block is
// true and no waker is currently asserted, Fetch waits until one is.
func (s *Sleeper) Fetch(block bool) (int, bool) {
	for {
		s.mu.Lock()
		wakers := make([]wakerEntry, len(s.wakers))
		copy(wakers, s.wakers)
		db := s.doorbell
		s.mu.Unlock()

		for _, e := range wakers {
			if e.w.tryConsume() {
				return e.id, true
			}
		}

		if !block || db == nil {
			return 0, false
		}

		<-db
	}
}

// Done detaches s from all of its registered wakers so they no longer hold
// a reference to s's doorbell. Call it when the event loop that owns s is
// shutting down.
func (s *Sleeper) Done() {
	s.mu.Lock()
	wakers := s.wakers
	s.wakers = nil
	s.mu.Unlock()

	for _, e := range wakers {
		e.w.mu.Lock()
		e.w.doorbell = nil
		e.w.mu.Unlock()
	}
}

// Timer asserts a Waker once after a delay, the way the teacher's sender
// comments sketch a "resendTimer timer" field for driving RTO expiry off
// the same event loop.
type Timer struct {
	t *time.Timer
}

// AfterFunc asserts w once d has elapsed. Call Stop to cancel it.
func AfterFunc(d time.Duration, w *Waker) *Timer {
	return &Timer{t: time.AfterFunc(d, w.Assert)}
}

// Stop cancels the timer if it hasn't fired yet.
func (t *Timer) Stop() {
	t.t.Stop()
}
