package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/sweeney/ballbalancer/internal/control"
	"github.com/sweeney/ballbalancer/internal/fault"
	"github.com/sweeney/ballbalancer/internal/touch"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewTracker(t *testing.T) {
	cfg := Config{HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPPort: ":80", TelemetryEvery: 50}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.TelemetryEvery != 50 {
		t.Errorf("Config.TelemetryEvery: got %d, want 50", snap.Config.TelemetryEvery)
	}
	if snap.Config.HTTPPort != ":80" {
		t.Errorf("Config.HTTPPort: got %q, want %q", snap.Config.HTTPPort, ":80")
	}
	if snap.MotorsEnabled || snap.MQTTConnected {
		t.Error("expected motors disabled and MQTT disconnected initially")
	}
	if snap.Fault != "" {
		t.Errorf("expected unknown fault state initially, got %q", snap.Fault)
	}
}

func TestUpdateFault(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.UpdateFault(fault.StateFaulted, false, fault.EventCounts{Faults: 2, Stops: 1}, 3)

	snap := tr.Snapshot()
	if snap.Fault != fault.StateFaulted {
		t.Errorf("Fault: got %q, want FAULTED", snap.Fault)
	}
	if snap.MotorsEnabled {
		t.Error("expected motors disabled")
	}
	if snap.Counts.Faults != 2 || snap.Counts.Stops != 1 {
		t.Errorf("Counts: got %+v", snap.Counts)
	}
	if snap.EventsDropped != 3 {
		t.Errorf("EventsDropped: got %d, want 3", snap.EventsDropped)
	}
}

func TestRecordCycle(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.RecordCycle(control.Cycle{Seq: 9, Duty: mgl64.Vec2{1, 2}}, 40*time.Millisecond)

	snap := tr.Snapshot()
	if snap.LastCycle.Seq != 9 || snap.LastCycle.Duty != (mgl64.Vec2{1, 2}) {
		t.Errorf("LastCycle: got %+v", snap.LastCycle)
	}
	if snap.ScanTime != 40*time.Millisecond {
		t.Errorf("ScanTime: got %v", snap.ScanTime)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.UpdateFault(fault.StateNormal, true, fault.EventCounts{}, 0)

	snap1 := tr.Snapshot()
	tr.UpdateFault(fault.StateFaulted, false, fault.EventCounts{Faults: 1}, 0)

	if snap1.Fault != fault.StateNormal || !snap1.MotorsEnabled {
		t.Error("snapshot should be a copy; fault state was modified")
	}
}

func balancingSnapshot() Snapshot {
	return Snapshot{
		Fault:         fault.StateNormal,
		MotorsEnabled: true,
		Counts:        fault.EventCounts{Faults: 1, Stops: 2, Clears: 3},
		EventsDropped: 4,
		LastCycle: control.Cycle{
			Seq:   1200,
			Ball:  touch.Sample{X: 0.01, Y: -0.02, Contact: true},
			Angle: mgl64.Vec2{0.05, -0.05},
			Duty:  mgl64.Vec2{10, -20},
		},
		ScanTime:      1500 * time.Microsecond,
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config: Config{
			HeartbeatMs:    900000,
			Broker:         "tcp://localhost:1883",
			HTTPPort:       ":80",
			TelemetryEvery: 50,
			Gains:          [4]float64{90, -10, 75, -47},
			TicksPerRev:    4000,
		},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(balancingSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status

	if s.Fault != "NORMAL" || !s.MotorsEnabled {
		t.Errorf("fault/motors: got %q %v", s.Fault, s.MotorsEnabled)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT: got %+v", s.MQTT)
	}
	if s.Counts != (CountsJSON{Faults: 1, EmergencyStops: 2, Clears: 3, Dropped: 4}) {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if s.Loop.Cycles != 1200 || !s.Loop.Contact || s.Loop.ScanTimeMs != 1.5 {
		t.Errorf("Loop: got %+v", s.Loop)
	}
	if s.Loop.Position != [2]float64{0.01, -0.02} || s.Loop.Duty != [2]float64{10, -20} {
		t.Errorf("Loop vectors: got %+v", s.Loop)
	}
	if s.Config.Gains != [4]float64{90, -10, 75, -47} || s.Config.TicksPerRev != 4000 {
		t.Errorf("Config: got %+v", s.Config)
	}
	// Event and Reason should be omitted
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty Event/Reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONUnknownStateAndNoContact(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(time.Second),
		LastCycle: control.Cycle{
			Ball:    touch.Sample{X: 0.3, Y: 0.3},
			ScanErr: errors.New("adc read failed"),
		},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Fault != "UNKNOWN" {
		t.Errorf("Fault: got %q, want UNKNOWN", parsed.Status.Fault)
	}
	if parsed.Status.Loop.Position != [2]float64{} {
		t.Errorf("position must be hidden without contact, got %v", parsed.Status.Loop.Position)
	}
	if parsed.Status.Loop.ScanError != "adc read failed" {
		t.Errorf("ScanError: got %q", parsed.Status.Loop.ScanError)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	tests := []struct {
		event, reason string
	}{
		{"STARTUP", ""},
		{"HEARTBEAT", ""},
		{"SHUTDOWN", "SIGTERM"},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			data := FormatStatusEvent(balancingSnapshot(), tt.event, tt.reason)

			var raw map[string]interface{}
			if err := json.Unmarshal(data, &raw); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			status := raw["status"].(map[string]interface{})
			if status["event"] != tt.event {
				t.Errorf("event: got %v, want %s", status["event"], tt.event)
			}
			reason, exists := status["reason"]
			if tt.reason == "" && exists {
				t.Error("reason should be omitted when empty")
			}
			if tt.reason != "" && reason != tt.reason {
				t.Errorf("reason: got %v, want %s", reason, tt.reason)
			}
			if status["fault"] != "NORMAL" {
				t.Errorf("fault: got %v", status["fault"])
			}
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.UpdateFault(fault.StateNormal, true, fault.EventCounts{Faults: i}, 0)
			tr.RecordCycle(control.Cycle{Seq: uint64(i)}, time.Duration(i))
			tr.SetMQTTConnected(i%2 == 0)
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
