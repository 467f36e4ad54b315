package fault

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/ballbalancer/internal/hal"
)

// eventBuffer bounds the queue between handlers and the event consumer.
const eventBuffer = 32

// Actuator is the part of the motor driver the supervisor gates.
type Actuator interface {
	Enable() error
	Disable() error
}

const (
	normal int32 = iota
	faulted
)

// Supervisor is the NORMAL/FAULTED state machine.
type Supervisor struct {
	act    Actuator
	fault  hal.EdgeInput
	button hal.EdgeInput
	now    func() time.Time

	state   atomic.Int32
	faults  atomic.Int64
	stops   atomic.Int64
	clears  atomic.Int64
	dropped atomic.Int64

	events chan Event
}

// New creates a Supervisor in the NORMAL state. fault is the active-low
// driver fault line, button the manual stop/clear input.
func New(act Actuator, fault, button hal.EdgeInput, now func() time.Time) *Supervisor {
	if now == nil {
		now = time.Now
	}
	return &Supervisor{
		act:    act,
		fault:  fault,
		button: button,
		now:    now,
		events: make(chan Event, eventBuffer),
	}
}

// Start binds the handlers to both inputs.
func (s *Supervisor) Start() error {
	if err := s.fault.Watch(s.OnFaultSignal); err != nil {
		return fmt.Errorf("watch fault line: %w", err)
	}
	if err := s.button.Watch(s.OnButton); err != nil {
		return fmt.Errorf("watch button: %w", err)
	}
	return nil
}

// Close stops edge delivery on both inputs.
func (s *Supervisor) Close() error {
	errFault := s.fault.Close()
	errButton := s.button.Close()
	if errFault != nil {
		return fmt.Errorf("close fault line: %w", errFault)
	}
	if errButton != nil {
		return fmt.Errorf("close button: %w", errButton)
	}
	return nil
}

// OnFaultSignal handles a falling edge on the fault line. It always latches
// FAULTED and disables the actuator, whatever the current state.
func (s *Supervisor) OnFaultSignal() {
	s.state.Store(faulted)
	err := s.act.Disable()
	s.faults.Add(1)
	s.emit(EventFaultDetected, err)
}

// OnButton handles a button press. In FAULTED it clears the latch and
// re-enables the actuator; in NORMAL it is an emergency stop.
func (s *Supervisor) OnButton() {
	if s.state.Load() == faulted {
		s.clear()
		return
	}
	s.state.Store(faulted)
	err := s.act.Disable()
	s.stops.Add(1)
	s.emit(EventEmergencyStop, err)
}

// clear masks further presses while it runs. The fault line stays live, so
// a fault edge can land between the flag clear and the enable; the state is
// re-checked afterwards and the actuator disabled again if that happened.
// Only a clear that leaves the latch NORMAL is counted and reported as one.
// A failed enable re-latches FAULTED and reports a fault.
func (s *Supervisor) clear() {
	s.button.Disarm()
	defer s.button.Arm()

	if !s.state.CompareAndSwap(faulted, normal) {
		return
	}
	if err := s.act.Enable(); err != nil {
		s.state.Store(faulted)
		s.act.Disable()
		s.faults.Add(1)
		s.emit(EventFaultDetected, err)
		return
	}
	if s.state.Load() == faulted {
		// The fault edge that won has already been counted and reported.
		if err := s.act.Disable(); err != nil {
			s.emit(EventFaultDetected, err)
		}
		return
	}
	s.clears.Add(1)
	s.emit(EventFaultCleared, nil)
}

func (s *Supervisor) emit(t EventType, err error) {
	e := Event{
		Timestamp: s.now(),
		Type:      t,
		State:     s.State(),
		Err:       err,
	}
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
	}
}

// State returns the latched state.
func (s *Supervisor) State() State {
	if s.state.Load() == faulted {
		return StateFaulted
	}
	return StateNormal
}

// Events returns the transition stream. Events are dropped, not queued
// without bound, when the consumer falls behind.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Dropped returns the number of events lost to a full queue.
func (s *Supervisor) Dropped() int64 {
	return s.dropped.Load()
}

// Counts returns the number of each transition since startup.
func (s *Supervisor) Counts() EventCounts {
	return EventCounts{
		Faults: int(s.faults.Load()),
		Stops:  int(s.stops.Load()),
		Clears: int(s.clears.Load()),
	}
}
