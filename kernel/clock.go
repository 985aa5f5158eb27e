// Package kernel implements the deterministic discrete-event core: a
// virtual clock, an event queue, a timer queue, an awaiter table, a
// cooperative task executor, and the dispatcher that ties them together.
//
// Everything in this package runs on a single logical thread. Handlers and
// task bodies never run concurrently with each other or with the
// dispatcher; the only concurrency is the goroutine-per-task plumbing used
// to give process code a natural suspend/resume shape, and that plumbing
// is strictly handed off one token at a time (see task.go).
package kernel

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Clock is the monotonic virtual-time source shared by every component.
// Time only moves forward, and only the Dispatcher advances it.
type Clock struct {
	now float64
	rng *rand.Rand
}

// NewClock creates a clock at time zero, seeded for reproducibility. Two
// clocks built from the same seed draw the same sequence of randomness,
// which is what makes a whole simulation run byte-identical across
// repeats (see spec invariant: determinism).
func NewClock(seed uint64) *Clock {
	return &Clock{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Now returns the current virtual time.
func (c *Clock) Now() float64 {
	return c.now
}

// advance moves the clock forward. It is a programmer error to move it
// backwards; only the dispatcher calls this, and only with times it just
// popped off one of the priority queues.
func (c *Clock) advance(t float64) {
	if t < c.now {
		panic(fmt.Sprintf("kernel: clock moved backwards: %v -> %v", c.now, t))
	}
	c.now = t
}

// Rand returns a uniform float64 in [0, 1) drawn from the seeded stream.
// Every source of randomness in the simulator — network faults, jittered
// delays, duplication counts — must flow through this one method so runs
// stay reproducible.
func (c *Clock) Rand() float64 {
	return c.rng.Float64()
}

// GenRange returns a uniform float64 in [lo, hi). Panics if hi < lo.
func (c *Clock) GenRange(lo, hi float64) float64 {
	if hi < lo {
		panic(fmt.Sprintf("kernel: GenRange: hi %v < lo %v", hi, lo))
	}
	if hi == lo {
		return lo
	}
	return lo + c.Rand()*(hi-lo)
}

// SampleWeighted draws an index from weights, proportionally to each
// weight's share of the total. Weights must be non-negative and sum to a
// positive number.
func (c *Clock) SampleWeighted(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		panic("kernel: SampleWeighted: weights must sum to a positive number")
	}
	draw := c.Rand() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if draw < acc {
			return i
		}
	}
	return len(weights) - 1
}

const randomStringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString returns a random alphanumeric string of length n, drawn
// from the same seeded stream as everything else.
func (c *Clock) RandomString(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		idx := int(c.Rand() * float64(len(randomStringAlphabet)))
		if idx >= len(randomStringAlphabet) {
			idx = len(randomStringAlphabet) - 1
		}
		sb.WriteByte(randomStringAlphabet[idx])
	}
	return sb.String()
}
