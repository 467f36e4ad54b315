package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/ballbalancer/internal/config"
	"github.com/sweeney/ballbalancer/internal/control"
	"github.com/sweeney/ballbalancer/internal/encoder"
	"github.com/sweeney/ballbalancer/internal/fault"
	"github.com/sweeney/ballbalancer/internal/hal"
	"github.com/sweeney/ballbalancer/internal/motor"
	"github.com/sweeney/ballbalancer/internal/mqtt"
	"github.com/sweeney/ballbalancer/internal/status"
	"github.com/sweeney/ballbalancer/internal/touch"
)

// telemetryQueue bounds the cycles waiting for publication. The control
// loop never blocks on it; excess cycles are skipped.
const telemetryQueue = 16

// system is the composed controller.
type system struct {
	panel      *touch.Panel
	enc        [2]*encoder.Tracker
	driver     *motor.Driver
	supervisor *fault.Supervisor
	loop       *control.Loop
}

// build wires the components onto a board. The driver comes up disabled.
func build(b *hal.Board, cfg *config.Config, now func() time.Time, logger *log.Logger) (*system, error) {
	modulus := int64(cfg.Encoder.Modulus)
	enc := [2]*encoder.Tracker{
		encoder.New(b.Counters[0], modulus, cfg.Encoder.TicksPerRev),
		encoder.New(b.Counters[1], modulus, cfg.Encoder.TicksPerRev),
	}
	driver, err := motor.New(b.Sleep, b.Channels)
	if err != nil {
		return nil, fmt.Errorf("init motor driver: %w", err)
	}
	panel := touch.New(b.Terminals, cfg.Touch(), now)
	return &system{
		panel:      panel,
		enc:        enc,
		driver:     driver,
		supervisor: fault.New(driver, b.Fault, b.Button, now),
		loop:       control.New(cfg.Control(), panel, [2]control.AngleSensor{enc[0], enc[1]}, driver, now, logger),
	}, nil
}

// offlinePublisher is used when no broker is configured.
type offlinePublisher struct{}

func (offlinePublisher) PublishTelemetry(control.Cycle) error { return nil }
func (offlinePublisher) PublishFault(fault.Event) error       { return nil }
func (offlinePublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (offlinePublisher) Close() error                         { return nil }

func runLoop(sys *system, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, telemetryEvery int, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	// Watch the fault inputs before the bridge is powered.
	if err := sys.supervisor.Start(); err != nil {
		return err
	}
	defer sys.supervisor.Close()

	if err := sys.driver.Enable(); err != nil {
		return err
	}
	defer sys.driver.Disable()
	// A fault latched between Start and Enable must keep the bridge off.
	if sys.supervisor.State() == fault.StateFaulted {
		sys.driver.Disable()
	}

	updateStatus := func() {
		tracker.UpdateFault(sys.supervisor.State(), sys.driver.Enabled(), sys.supervisor.Counts(), sys.supervisor.Dropped())
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}
	publishStatus := func(event, reason string, retained bool) {
		snap := tracker.Snapshot()
		ev := mqtt.SystemEvent{
			Timestamp:  now(),
			Event:      event,
			Reason:     reason,
			Retained:   retained,
			RawPayload: status.FormatStatusEvent(snap, event, reason),
		}
		if err := publisher.PublishSystem(ev); err != nil {
			log.Printf("failed to publish %s event: %v", event, err)
		} else {
			log.Printf("published %s event", event)
		}
	}
	handleFault := func(e fault.Event) {
		if e.Err != nil {
			log.Printf("fault: %s state=%s error=%v", e.Type, e.State, e.Err)
		} else {
			log.Printf("fault: %s state=%s", e.Type, e.State)
		}
		if err := publisher.PublishFault(e); err != nil {
			log.Printf("fault publish error: %v", err)
		}
		updateStatus()
	}

	updateStatus()
	publishStatus("STARTUP", "", true)

	telemetry := make(chan control.Cycle, telemetryQueue)
	sys.loop.Observe(func(c control.Cycle) {
		tracker.RecordCycle(c, sys.panel.TotalScanTime())
		if telemetryEvery > 0 && c.Seq%uint64(telemetryEvery) == 0 {
			select {
			case telemetry <- c:
			default:
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sys.loop.Run(ctx) }()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			cancel()
			if err := <-done; err != nil {
				log.Printf("control loop: %v", err)
			}
			// Stop edge delivery first so a button press cannot re-enable
			// the bridge after it is switched off.
			if err := sys.supervisor.Close(); err != nil {
				log.Printf("shutdown: %v", err)
			}
			if err := sys.driver.Disable(); err != nil {
				log.Printf("shutdown: %v", err)
			}
			for drained := false; !drained; {
				select {
				case e := <-sys.supervisor.Events():
					handleFault(e)
				default:
					drained = true
				}
			}
			updateStatus()
			publishStatus("SHUTDOWN", signalName(s), true)
			return nil

		case e := <-sys.supervisor.Events():
			handleFault(e)

		case c := <-telemetry:
			if err := publisher.PublishTelemetry(c); err != nil {
				log.Printf("telemetry publish error: %v", err)
			}

		case <-heartbeat:
			updateStatus()
			snap := tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v fault=%s cycles=%d faults=%d stops=%d clears=%d",
				snap.Uptime().Truncate(time.Second), snap.Fault, snap.LastCycle.Seq,
				snap.Counts.Faults, snap.Counts.Stops, snap.Counts.Clears)
			publishStatus("HEARTBEAT", "", false)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
