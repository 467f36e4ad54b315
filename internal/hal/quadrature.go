package hal

import "sync/atomic"

// quadTable maps (previous AB << 2 | current AB) to a count step.
// Invalid transitions (both phases changed) count as zero.
var quadTable = [16]int8{
	0, +1, -1, 0,
	-1, 0, 0, +1,
	+1, 0, 0, -1,
	0, -1, +1, 0,
}

// QuadratureDecoder turns A/B phase levels into a wrapping counter.
// Edge methods must be called from a single goroutine; Count is safe from any.
type QuadratureDecoder struct {
	modulus uint32
	state   uint8
	count   atomic.Uint32
	invalid atomic.Uint64
}

// NewQuadratureDecoder creates a decoder seeded with the current phase levels.
func NewQuadratureDecoder(modulus uint32, a, b bool) *QuadratureDecoder {
	d := &QuadratureDecoder{modulus: modulus}
	d.state = phase(a, b)
	return d
}

func phase(a, b bool) uint8 {
	var s uint8
	if a {
		s |= 2
	}
	if b {
		s |= 1
	}
	return s
}

// Edge records new phase levels after an edge on either line.
func (d *QuadratureDecoder) Edge(a, b bool) {
	next := phase(a, b)
	if next == d.state {
		return
	}
	step := quadTable[d.state<<2|next]
	if step == 0 {
		d.invalid.Add(1)
	}
	d.state = next

	c := d.count.Load()
	switch step {
	case +1:
		c++
		if c >= d.modulus {
			c = 0
		}
	case -1:
		if c == 0 {
			c = d.modulus
		}
		c--
	}
	d.count.Store(c)
}

// Count returns the counter value in [0, modulus).
func (d *QuadratureDecoder) Count() uint32 {
	return d.count.Load()
}

// Invalid returns the number of transitions where both phases changed at once.
func (d *QuadratureDecoder) Invalid() uint64 {
	return d.invalid.Load()
}
