package hal

import "sync/atomic"

// edgeGate holds a handler and an arm flag. It stands in for the
// enable/disable bit of an external interrupt line.
type edgeGate struct {
	handler atomic.Pointer[func()]
	armed   atomic.Bool
}

func (g *edgeGate) bind(handler func()) {
	g.handler.Store(&handler)
	g.armed.Store(true)
}

func (g *edgeGate) fire() bool {
	if !g.armed.Load() {
		return false
	}
	h := g.handler.Load()
	if h == nil {
		return false
	}
	(*h)()
	return true
}

func (g *edgeGate) Disarm() { g.armed.Store(false) }

func (g *edgeGate) Arm() { g.armed.Store(true) }
