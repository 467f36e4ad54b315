// Package motor drives two DC motors through a dual H-bridge with a shared
// sleep line and two PWM inputs per motor.
package motor

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sweeney/ballbalancer/internal/hal"
)

// MaxDuty is the largest duty magnitude in percent.
const MaxDuty = 100

// ErrInvalidMotor is returned for a motor index other than 1 or 2.
var ErrInvalidMotor = errors.New("invalid motor number (try 1 or 2)")

// Driver is the actuator for both motors.
type Driver struct {
	sleep    hal.Output
	channels [2][2]hal.PWM
	enabled  atomic.Bool
}

// New creates a Driver from the sleep line and the channels ordered
// motor 1 A/B, motor 2 A/B. The driver starts disabled with all channels at 0%.
func New(sleep hal.Output, channels [4]hal.PWM) (*Driver, error) {
	d := &Driver{
		sleep: sleep,
		channels: [2][2]hal.PWM{
			{channels[0], channels[1]},
			{channels[2], channels[3]},
		},
	}
	if err := d.Disable(); err != nil {
		return nil, err
	}
	for i := 1; i <= 2; i++ {
		if err := d.SetDuty(i, 0); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Enable raises the sleep line so the bridge drives the motors.
func (d *Driver) Enable() error {
	if err := d.sleep.Set(true); err != nil {
		return fmt.Errorf("enable motors: %w", err)
	}
	d.enabled.Store(true)
	return nil
}

// Disable lowers the sleep line. Duty writes keep working but have no effect
// on the motors until Enable.
func (d *Driver) Disable() error {
	d.enabled.Store(false)
	if err := d.sleep.Set(false); err != nil {
		return fmt.Errorf("disable motors: %w", err)
	}
	return nil
}

// Enabled reports the sleep line state.
func (d *Driver) Enabled() bool {
	return d.enabled.Load()
}

// SetDuty drives one motor. Positive duty drives channel A forward, zero or
// negative drives channel B in reverse. The magnitude is clamped to MaxDuty.
func (d *Driver) SetDuty(motor int, duty float64) error {
	if motor != 1 && motor != 2 {
		return fmt.Errorf("set duty %d: %w", motor, ErrInvalidMotor)
	}
	if math.IsNaN(duty) {
		duty = 0
	}

	a, b := 0.0, 0.0
	if duty > 0 {
		a = math.Min(duty, MaxDuty)
	} else {
		b = math.Min(-duty, MaxDuty)
	}

	ch := d.channels[motor-1]
	if err := ch[0].SetDutyPercent(a); err != nil {
		return fmt.Errorf("motor %d channel A: %w", motor, err)
	}
	if err := ch[1].SetDutyPercent(b); err != nil {
		return fmt.Errorf("motor %d channel B: %w", motor, err)
	}
	return nil
}
