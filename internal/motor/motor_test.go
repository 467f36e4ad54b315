package motor

import (
	"errors"
	"math"
	"testing"

	"github.com/sweeney/ballbalancer/internal/hal"
)

func newTestDriver(t *testing.T) (*Driver, *hal.FakeOutput, [4]*hal.FakePWM) {
	t.Helper()
	sleep := &hal.FakeOutput{}
	var pwms [4]*hal.FakePWM
	var chans [4]hal.PWM
	for i := range pwms {
		pwms[i] = &hal.FakePWM{}
		chans[i] = pwms[i]
	}
	d, err := New(sleep, chans)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, sleep, pwms
}

func TestNewStartsDisabledAndIdle(t *testing.T) {
	d, sleep, pwms := newTestDriver(t)

	if d.Enabled() {
		t.Error("new driver should be disabled")
	}
	if sleep.High() {
		t.Error("sleep line should be low")
	}
	for i, p := range pwms {
		if len(p.History) != 1 || p.Duty() != 0 {
			t.Errorf("channel %d: history %v, want [0]", i, p.History)
		}
	}
}

func TestEnableDisable(t *testing.T) {
	d, sleep, _ := newTestDriver(t)

	if err := d.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !d.Enabled() || !sleep.High() {
		t.Error("expected enabled with sleep line high")
	}

	if err := d.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if d.Enabled() || sleep.High() {
		t.Error("expected disabled with sleep line low")
	}
}

func TestSetDuty(t *testing.T) {
	tests := []struct {
		name  string
		motor int
		duty  float64
		wantA float64
		wantB float64
	}{
		{"forward", 1, 40, 40, 0},
		{"reverse", 1, -25.5, 0, 25.5},
		{"zero", 1, 0, 0, 0},
		{"clamp forward", 1, 150, 100, 0},
		{"clamp reverse", 1, -150, 0, 100},
		{"motor 2 forward", 2, 60, 60, 0},
		{"motor 2 clamp reverse", 2, -1e9, 0, 100},
		{"nan is zero", 2, math.NaN(), 0, 0},
		{"positive infinity", 1, math.Inf(1), 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, pwms := newTestDriver(t)
			if err := d.SetDuty(tt.motor, tt.duty); err != nil {
				t.Fatalf("SetDuty: %v", err)
			}
			a, b := pwms[(tt.motor-1)*2], pwms[(tt.motor-1)*2+1]
			if a.Duty() != tt.wantA {
				t.Errorf("channel A: got %v, want %v", a.Duty(), tt.wantA)
			}
			if b.Duty() != tt.wantB {
				t.Errorf("channel B: got %v, want %v", b.Duty(), tt.wantB)
			}
		})
	}
}

func TestSetDutyChannelsMutuallyExclusive(t *testing.T) {
	d, _, pwms := newTestDriver(t)
	for duty := -300.0; duty <= 300; duty += 7.5 {
		if err := d.SetDuty(1, duty); err != nil {
			t.Fatalf("SetDuty(%v): %v", duty, err)
		}
		a, b := pwms[0].Duty(), pwms[1].Duty()
		if a > MaxDuty || b > MaxDuty {
			t.Fatalf("duty %v: channel above max (A=%v B=%v)", duty, a, b)
		}
		if duty != 0 && (a == 0) == (b == 0) {
			t.Fatalf("duty %v: expected exactly one active channel (A=%v B=%v)", duty, a, b)
		}
	}
}

func TestSetDutyLeavesOtherMotorAlone(t *testing.T) {
	d, _, pwms := newTestDriver(t)
	d.SetDuty(2, 30)
	d.SetDuty(1, -80)

	if pwms[2].Duty() != 30 || pwms[3].Duty() != 0 {
		t.Errorf("motor 2 changed: A=%v B=%v", pwms[2].Duty(), pwms[3].Duty())
	}
}

func TestSetDutyInvalidMotor(t *testing.T) {
	d, _, pwms := newTestDriver(t)

	for _, m := range []int{0, 3, -1} {
		err := d.SetDuty(m, 50)
		if !errors.Is(err, ErrInvalidMotor) {
			t.Errorf("motor %d: expected ErrInvalidMotor, got %v", m, err)
		}
	}
	for i, p := range pwms {
		if len(p.History) != 1 {
			t.Errorf("channel %d written on invalid request: %v", i, p.History)
		}
	}
}

func TestSetDutyChannelError(t *testing.T) {
	d, _, pwms := newTestDriver(t)
	pwms[1].SetError = errors.New("pwm fault")

	if err := d.SetDuty(1, -10); !errors.Is(err, pwms[1].SetError) {
		t.Errorf("expected wrapped channel error, got %v", err)
	}
}
