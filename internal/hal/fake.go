package hal

import (
	"errors"
	"sync"
	"sync/atomic"
)

// FakeTerminal is a test double that records modes and returns scripted codes.
type FakeTerminal struct {
	// Codes contains scripted ADC codes. Each ReadAnalog consumes the next one.
	// When exhausted, the last code repeats.
	Codes []int

	// Modes records every mode the terminal was configured into.
	Modes []Mode

	// ConfigureError, if set, is returned by Configure.
	ConfigureError error

	// ReadError, if set, is returned by ReadAnalog.
	ReadError error

	mode  Mode
	index int
}

// NewFakeTerminal creates a FakeTerminal with the given codes.
func NewFakeTerminal(codes ...int) *FakeTerminal {
	return &FakeTerminal{Codes: codes}
}

// Configure records the mode.
func (f *FakeTerminal) Configure(m Mode) error {
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.mode = m
	f.Modes = append(f.Modes, m)
	return nil
}

// Mode returns the current mode.
func (f *FakeTerminal) Mode() Mode {
	return f.mode
}

// ReadAnalog returns the next scripted code.
// It fails unless the terminal is in ModeAnalog, like a pin with no ADC routed.
func (f *FakeTerminal) ReadAnalog() (int, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if f.mode != ModeAnalog {
		return 0, errors.New("terminal not in analog mode")
	}
	if len(f.Codes) == 0 {
		return 0, errors.New("no codes configured")
	}
	code := f.Codes[f.index]
	if f.index < len(f.Codes)-1 {
		f.index++
	}
	return code, nil
}

// FakeCounter returns scripted counter values.
type FakeCounter struct {
	mu     sync.Mutex
	values []uint32
	index  int
	reads  int
}

// NewFakeCounter creates a FakeCounter. Each Count consumes the next value;
// the last value repeats.
func NewFakeCounter(values ...uint32) *FakeCounter {
	return &FakeCounter{values: values}
}

// Count returns the next scripted value, or 0 when none are configured.
func (f *FakeCounter) Count() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.values) == 0 {
		return 0
	}
	v := f.values[f.index]
	if f.index < len(f.values)-1 {
		f.index++
	}
	return v
}

// Reads returns how many times Count was called.
func (f *FakeCounter) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// FakePWM records duty cycle writes.
type FakePWM struct {
	mu      sync.Mutex
	duty    float64
	History []float64

	// SetError, if set, is returned by SetDutyPercent.
	SetError error
}

// SetDutyPercent records the duty.
func (f *FakePWM) SetDutyPercent(pct float64) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.mu.Lock()
	f.duty = pct
	f.History = append(f.History, pct)
	f.mu.Unlock()
	return nil
}

// Duty returns the last programmed duty.
func (f *FakePWM) Duty() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duty
}

// FakeOutput records digital output writes.
type FakeOutput struct {
	high   atomic.Bool
	writes atomic.Int64
}

// Set records the level.
func (f *FakeOutput) Set(high bool) error {
	f.high.Store(high)
	f.writes.Add(1)
	return nil
}

// High reports the last level written.
func (f *FakeOutput) High() bool {
	return f.high.Load()
}

// Writes returns the number of Set calls.
func (f *FakeOutput) Writes() int64 {
	return f.writes.Load()
}

// FakeEdge is an EdgeInput whose edges are injected by Fire.
type FakeEdge struct {
	edgeGate

	// WatchError, if set, is returned by Watch.
	WatchError error

	watching atomic.Bool
	closed   atomic.Bool
	dropped  atomic.Int64
}

// NewFakeEdge creates an unwatched FakeEdge.
func NewFakeEdge() *FakeEdge {
	return &FakeEdge{}
}

// Watch binds the handler.
func (f *FakeEdge) Watch(handler func()) error {
	if f.WatchError != nil {
		return f.WatchError
	}
	f.bind(handler)
	f.watching.Store(true)
	return nil
}

// Fire simulates a falling edge. It returns false if delivery was masked.
func (f *FakeEdge) Fire() bool {
	if !f.watching.Load() || f.closed.Load() {
		return false
	}
	if !f.fire() {
		f.dropped.Add(1)
		return false
	}
	return true
}

// Armed reports whether delivery is currently unmasked.
func (f *FakeEdge) Armed() bool {
	return f.armed.Load()
}

// Dropped returns the number of edges masked while disarmed.
func (f *FakeEdge) Dropped() int64 {
	return f.dropped.Load()
}

// Close stops delivery.
func (f *FakeEdge) Close() error {
	f.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (f *FakeEdge) Closed() bool {
	return f.closed.Load()
}

// FakeBoard is a Board wired entirely to fakes, for tests that run the
// whole daemon without hardware.
type FakeBoard struct {
	Xp, Xm, Yp, Ym *FakeTerminal
	Counters       [2]*FakeCounter
	Sleep          *FakeOutput
	Channels       [4]*FakePWM
	Fault, Button  *FakeEdge
}

// NewFakeBoard creates a FakeBoard with an untouched panel (every code at
// fullScale) and both counters at zero.
func NewFakeBoard(fullScale int) *FakeBoard {
	f := &FakeBoard{
		Xp:       NewFakeTerminal(fullScale),
		Xm:       NewFakeTerminal(fullScale),
		Yp:       NewFakeTerminal(fullScale),
		Ym:       NewFakeTerminal(fullScale),
		Counters: [2]*FakeCounter{NewFakeCounter(), NewFakeCounter()},
		Sleep:    &FakeOutput{},
		Fault:    NewFakeEdge(),
		Button:   NewFakeEdge(),
	}
	for i := range f.Channels {
		f.Channels[i] = &FakePWM{}
	}
	return f
}

// Board returns the capabilities as a Board.
func (f *FakeBoard) Board() *Board {
	b := &Board{
		Terminals: Terminals{Xp: f.Xp, Xm: f.Xm, Yp: f.Yp, Ym: f.Ym},
		Counters:  [2]Counter{f.Counters[0], f.Counters[1]},
		Sleep:     f.Sleep,
		Fault:     f.Fault,
		Button:    f.Button,
	}
	for i, c := range f.Channels {
		b.Channels[i] = c
	}
	return b
}
