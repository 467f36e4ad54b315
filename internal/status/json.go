package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Fault         string     `json:"fault"`
	MotorsEnabled bool       `json:"motors_enabled"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"event_counts"`
	Loop          LoopJSON   `json:"loop"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of supervisor event counts.
type CountsJSON struct {
	Faults         int   `json:"faults"`
	EmergencyStops int   `json:"emergency_stops"`
	Clears         int   `json:"clears"`
	Dropped        int64 `json:"dropped"`
}

// LoopJSON summarises the last control cycle.
type LoopJSON struct {
	Cycles     uint64     `json:"cycles"`
	ScanTimeMs float64    `json:"scan_time_ms"`
	Contact    bool       `json:"contact"`
	Position   [2]float64 `json:"position"`
	Angle      [2]float64 `json:"angle"`
	Duty       [2]float64 `json:"duty"`
	ScanError  string     `json:"scan_error,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HeartbeatMs    int64      `json:"heartbeat_ms"`
	Broker         string     `json:"broker"`
	HTTPPort       string     `json:"http_port"`
	TelemetryEvery int        `json:"telemetry_every"`
	Gains          [4]float64 `json:"gains"`
	Setpoint       [2]float64 `json:"setpoint"`
	TicksPerRev    int        `json:"ticks_per_rev"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.Fault)
	if state == "" {
		state = "UNKNOWN"
	}

	c := snap.LastCycle
	loop := LoopJSON{
		Cycles:     c.Seq,
		ScanTimeMs: float64(snap.ScanTime) / float64(time.Millisecond),
		Contact:    c.Ball.Contact,
		Angle:      c.Angle,
		Duty:       c.Duty,
	}
	if c.Ball.Contact {
		loop.Position = c.Ball.Pos()
	}
	if c.ScanErr != nil {
		loop.ScanError = c.ScanErr.Error()
	}

	return StatusInner{
		Fault:         state,
		MotorsEnabled: snap.MotorsEnabled,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Faults:         snap.Counts.Faults,
			EmergencyStops: snap.Counts.Stops,
			Clears:         snap.Counts.Clears,
			Dropped:        snap.EventsDropped,
		},
		Loop: loop,
		Config: ConfigJSON{
			HeartbeatMs:    snap.Config.HeartbeatMs,
			Broker:         snap.Config.Broker,
			HTTPPort:       snap.Config.HTTPPort,
			TelemetryEvery: snap.Config.TelemetryEvery,
			Gains:          snap.Config.Gains,
			Setpoint:       snap.Config.Setpoint,
			TicksPerRev:    snap.Config.TicksPerRev,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
