// Package mqtt publishes balancer telemetry and events, with a fake for tests.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ballbalancer/internal/control"
	"github.com/sweeney/ballbalancer/internal/fault"
)

// TopicTelemetry carries sampled control cycles.
const TopicTelemetry = "balancer/telemetry"

// TopicFault carries fault supervisor transitions.
const TopicFault = "balancer/fault"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "balancer/system"

// Publisher publishes balancer data to MQTT.
type Publisher interface {
	// PublishTelemetry sends one control cycle. Best effort: dropped while offline.
	PublishTelemetry(c control.Cycle) error

	// PublishFault sends a fault supervisor transition.
	// Returns error if publishing fails (should not crash the process).
	PublishFault(e fault.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// TelemetryPayload is the JSON body published on TopicTelemetry.
type TelemetryPayload struct {
	Telemetry TelemetryInner `json:"telemetry"`
}

// TelemetryInner holds one cycle in SI units (m, m/s, rad, rad/s, %).
type TelemetryInner struct {
	Timestamp string     `json:"timestamp"`
	Seq       uint64     `json:"seq"`
	Contact   bool       `json:"contact"`
	Position  [2]float64 `json:"position"`
	Velocity  [2]float64 `json:"velocity"`
	Angle     [2]float64 `json:"angle"`
	AngleVel  [2]float64 `json:"angle_velocity"`
	Duty      [2]float64 `json:"duty"`
	ScanError string     `json:"scan_error,omitempty"`
}

// FormatTelemetryPayload creates the JSON payload for a control cycle.
func FormatTelemetryPayload(c control.Cycle) ([]byte, error) {
	inner := TelemetryInner{
		Timestamp: c.Time.UTC().Format(time.RFC3339Nano),
		Seq:       c.Seq,
		Contact:   c.Ball.Contact,
		Velocity:  c.BallVel,
		Angle:     c.Angle,
		AngleVel:  c.AngleVel,
		Duty:      c.Duty,
	}
	if c.Ball.Contact {
		inner.Position = c.Ball.Pos()
	}
	if c.ScanErr != nil {
		inner.ScanError = c.ScanErr.Error()
	}
	return json.Marshal(TelemetryPayload{Telemetry: inner})
}

// FaultPayload is the JSON body published on TopicFault.
type FaultPayload struct {
	Fault FaultInner `json:"fault"`
}

// FaultInner contains the transition details.
type FaultInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
}

// FormatFaultPayload creates the JSON payload for a supervisor transition.
func FormatFaultPayload(e fault.Event) ([]byte, error) {
	inner := FaultInner{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(e.Type),
		State:     string(e.State),
	}
	if e.Err != nil {
		inner.Error = e.Err.Error()
	}
	return json.Marshal(FaultPayload{Fault: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
