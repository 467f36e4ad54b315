// Package status provides a thread-safe status tracker for the balancer daemon.
// The control loop and fault drain write to it; HTTP handlers and MQTT
// heartbeats read snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ballbalancer/internal/control"
	"github.com/sweeney/ballbalancer/internal/fault"
)

// Config contains daemon configuration for display.
type Config struct {
	HeartbeatMs    int64
	Broker         string
	HTTPPort       string
	TelemetryEvery int
	Gains          [4]float64
	Setpoint       [2]float64
	TicksPerRev    int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Fault         fault.State
	MotorsEnabled bool
	Counts        fault.EventCounts
	EventsDropped int64

	// LastCycle is the most recent control cycle; zero until the loop runs.
	LastCycle control.Cycle
	ScanTime  time.Duration

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateFault sets the supervisor state and counters.
func (t *Tracker) UpdateFault(state fault.State, motorsEnabled bool, counts fault.EventCounts, dropped int64) {
	t.mu.Lock()
	t.snap.Fault = state
	t.snap.MotorsEnabled = motorsEnabled
	t.snap.Counts = counts
	t.snap.EventsDropped = dropped
	t.mu.Unlock()
}

// RecordCycle stores the latest control cycle and accumulated scan time.
func (t *Tracker) RecordCycle(c control.Cycle, scanTime time.Duration) {
	t.mu.Lock()
	t.snap.LastCycle = c
	t.snap.ScanTime = scanTime
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
