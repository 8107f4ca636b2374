// Package clock provides the monotonic timebase the connection FSM uses
// for RTO and handshake/teardown deadlines. Nothing in the FSM reads the
// wall clock directly, matching spec.md section 4.2.
package clock

import "time"

// Millis is a monotonic timestamp expressed in milliseconds. It is only
// ever compared against other Millis values taken from Now, never against
// wall-clock time.
type Millis int64

// clockStart anchors Millis(0) so values stay small and readable in traces
// without depending on the wall clock.
var clockStart = time.Now()

// Now returns the current monotonic time in milliseconds.
func Now() Millis {
	return Millis(time.Since(clockStart).Milliseconds())
}

// Since returns the number of milliseconds elapsed since t.
func Since(t Millis) Millis {
	return Now() - t
}

// Add returns the deadline d milliseconds after m.
func (m Millis) Add(d Millis) Millis {
	return m + d
}

// Sub returns the difference m - other, in milliseconds.
func (m Millis) Sub(other Millis) Millis {
	return m - other
}

// Duration converts m to a time.Duration, for use with timers and
// net.Conn deadlines.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Deadline is a point in monotonic time at which a wait should give up.
type Deadline = Millis

// Remaining returns how long is left until d, which may be negative if d
// has already passed.
func Remaining(d Deadline) time.Duration {
	return d.Sub(Now()).Duration()
}

// AbsoluteTime converts a monotonic deadline into a wall-clock time.Time
// suitable for net.Conn.SetReadDeadline, which only accepts wall time.
func AbsoluteTime(d Deadline) time.Time {
	return time.Now().Add(Remaining(d))
}
