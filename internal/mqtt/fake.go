package mqtt

import (
	"sync"

	"github.com/sweeney/ballbalancer/internal/control"
	"github.com/sweeney/ballbalancer/internal/fault"
)

// FakePublisher records published messages for test assertions.
// It is safe for concurrent use; read the recorded slices after the
// publishers have stopped, or through the accessor methods.
type FakePublisher struct {
	mu sync.Mutex

	// Cycles contains all telemetry cycles that were published.
	Cycles []control.Cycle

	// Faults contains all fault events that were published.
	Faults []fault.Event

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, is returned by PublishTelemetry and PublishFault.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// OnSystem, if set, runs at the start of PublishSystem, standing in for
	// a slow broker round trip. Set it before publishing starts.
	OnSystem func(SystemEvent)
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishTelemetry records the cycle.
func (f *FakePublisher) PublishTelemetry(c control.Cycle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Cycles = append(f.Cycles, c)
	return nil
}

// PublishFault records the event.
func (f *FakePublisher) PublishFault(e fault.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Faults = append(f.Faults, e)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.OnSystem != nil {
		f.OnSystem(event)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// FaultCount returns the number of recorded fault events.
func (f *FakePublisher) FaultCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Faults)
}

// TelemetryCount returns the number of recorded cycles.
func (f *FakePublisher) TelemetryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Cycles)
}

// SystemEventNames returns the recorded system event names in order.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cycles = nil
	f.Faults = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
