// Package lossy implements the probabilistic drop decision used to
// exercise the protocol core during testing (spec.md's out-of-scope
// "external collaborators" list). Per spec.md section 9's design note, the
// original C source keeps this as a package-level global (double
// packet_loss_rate); here it's an injected Policy value that
// Connection.sendRaw consults before every send, so a Connection's behavior is deterministic
// and testable independent of any global state.
package lossy

import (
	"math/rand"
	"sync"
)

// Policy decides whether the next outbound datagram should be dropped to
// simulate an unreliable network. The zero value never drops anything.
type Policy struct {
	mu   sync.Mutex
	rate float64
	rng  *rand.Rand
}

// NewPolicy returns a Policy that drops each datagram independently with
// probability rate, clamped to [0, 1].
func NewPolicy(rate float64, rng *rand.Rand) *Policy {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Policy{rate: rate, rng: rng}
}

// ShouldDrop reports whether the caller should silently discard the
// packet it was about to send. A nil Policy never drops.
func (p *Policy) ShouldDrop() bool {
	if p == nil || p.rate <= 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < p.rate
}
