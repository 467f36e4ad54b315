// Package fault latches motor faults and emergency stops.
// Handlers run in edge-delivery context: they never block, never log and
// only flip the latched state and the actuator enable line.
package fault

import "time"

// State is the latched fault state.
type State string

const (
	StateNormal  State = "NORMAL"
	StateFaulted State = "FAULTED"
)

// EventType is a supervisor transition.
type EventType string

const (
	EventFaultDetected EventType = "FAULT_DETECTED"
	EventEmergencyStop EventType = "EMERGENCY_STOP"
	EventFaultCleared  EventType = "FAULT_CLEARED"
)

// Event describes a transition, for logging and publishing.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State // state after the transition
	Err       error // actuator error during the transition, if any
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Faults int
	Stops  int
	Clears int
}
