// Package encoder tracks unbounded shaft angle from a wrapping quadrature counter.
package encoder

import (
	"math"
	"sync"

	"github.com/sweeney/ballbalancer/internal/hal"
)

// DefaultModulus is the range of a 16-bit hardware counter.
const DefaultModulus = 65536

// DefaultTicksPerRev is the quadrature resolution of the platform encoders.
const DefaultTicksPerRev = 4000

// Delta returns the shortest signed displacement from prev to curr on a
// counter of the given modulus. The result lies in (-modulus/2, modulus/2]
// and satisfies (prev + delta) mod modulus == curr.
func Delta(prev, curr uint32, modulus int64) int64 {
	d := int64(curr) - int64(prev)
	half := modulus / 2
	if d > half {
		d -= modulus
	} else if d <= -half {
		d += modulus
	}
	return d
}

// Tracker accumulates a wraparound-corrected tick count.
//
// Update must run often enough that the shaft turns less than modulus/2
// ticks between calls. A slower cadence aliases silently.
type Tracker struct {
	counter    hal.Counter
	modulus    int64
	radPerTick float64

	mu        sync.Mutex
	prev      uint32
	curr      uint32
	ticks     int64
	nearAlias uint64
}

// New creates a Tracker seeded from the counter's current value.
func New(counter hal.Counter, modulus int64, ticksPerRev int) *Tracker {
	if modulus <= 0 {
		modulus = DefaultModulus
	}
	if ticksPerRev <= 0 {
		ticksPerRev = DefaultTicksPerRev
	}
	c := counter.Count()
	return &Tracker{
		counter:    counter,
		modulus:    modulus,
		radPerTick: 2 * math.Pi / float64(ticksPerRev),
		prev:       c,
		curr:       c,
	}
}

// Update reads the counter and folds the corrected delta into the total.
func (t *Tracker) Update() {
	raw := t.counter.Count()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.prev = t.curr
	t.curr = raw
	d := Delta(t.prev, t.curr, t.modulus)
	// Deltas this large mean the cadence is close to the aliasing limit.
	if d >= t.modulus/4 || d <= -t.modulus/4 {
		t.nearAlias++
	}
	t.ticks += d
}

// Position returns the accumulated angle in radians.
func (t *Tracker) Position() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.ticks) * t.radPerTick
}

// Ticks returns the accumulated tick count.
func (t *Tracker) Ticks() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

// SetPosition overwrites the accumulated tick count. Counter history is kept.
func (t *Tracker) SetPosition(ticks int64) {
	t.mu.Lock()
	t.ticks = ticks
	t.mu.Unlock()
}

// NearAliasCount returns how many updates moved at least modulus/4 ticks.
func (t *Tracker) NearAliasCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nearAlias
}
