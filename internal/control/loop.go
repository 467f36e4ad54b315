// Package control closes the balancing loop: scan the panel, track the
// platform angles, evaluate the feedback law and command the motors.
package control

import (
	"context"
	"log"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/sweeney/ballbalancer/internal/touch"
)

// Scanner is the position sensor.
type Scanner interface {
	Scan() (touch.Sample, error)
}

// AngleSensor is one platform angle tracker.
type AngleSensor interface {
	Update()
	Position() float64
}

// DutySetter is the motor driver.
type DutySetter interface {
	SetDuty(motor int, duty float64) error
}

// dutyAttenuation scales every command down as a safety margin.
const dutyAttenuation = 0.5

// Cycle records one pass of the loop.
type Cycle struct {
	Seq  uint64
	Time time.Time

	Ball    touch.Sample
	BallVel mgl64.Vec2
	BallDt  time.Duration

	Angle    mgl64.Vec2
	AngleVel mgl64.Vec2
	AngleDt  time.Duration

	Torque mgl64.Vec2
	// Duty is the requested duty per motor, before the driver clamps it.
	Duty mgl64.Vec2

	ScanErr error
}

// Loop is the controller. It is not safe for concurrent use; Step and Run
// belong to a single goroutine.
type Loop struct {
	cfg     Config
	panel   Scanner
	enc     [2]AngleSensor
	act     DutySetter
	now     func() time.Time
	logger  *log.Logger
	observe func(Cycle)

	prevBall      touch.Sample
	prevBallTime  time.Time
	prevAngle     mgl64.Vec2
	prevAngleTime time.Time
	seq           uint64
	scanErrs      uint64
}

// New creates a Loop. now and logger may be nil for time.Now and log.Default.
func New(cfg Config, panel Scanner, enc [2]AngleSensor, act DutySetter, now func() time.Time, logger *log.Logger) *Loop {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.Default()
	}
	t := now()
	return &Loop{
		cfg:           cfg,
		panel:         panel,
		enc:           enc,
		act:           act,
		now:           now,
		logger:        logger,
		prevBallTime:  t,
		prevAngleTime: t,
	}
}

// Observe registers a callback run at the end of every cycle.
func (l *Loop) Observe(fn func(Cycle)) {
	l.observe = fn
}

// Step runs one cycle.
//
// Ball velocity is differenced only when the previous sample had contact,
// while the law itself is gated on the current sample's contact. The
// one-cycle lag between the two gates is intentional.
func (l *Loop) Step() Cycle {
	l.seq++
	c := Cycle{Seq: l.seq}

	ball, err := l.panel.Scan()
	if err != nil {
		c.ScanErr = err
		ball = touch.Sample{}
		l.scanErrs++
		if l.scanErrs == 1 {
			l.logger.Printf("control: scan error, holding motors at zero: %v", err)
		}
	} else if l.scanErrs > 0 {
		l.logger.Printf("control: scan recovered after %d errors", l.scanErrs)
		l.scanErrs = 0
	}
	c.Ball = ball

	t := l.now()
	c.Time = t
	c.BallDt = t.Sub(l.prevBallTime)
	l.prevBallTime = t
	if l.prevBall.Contact && c.BallDt > 0 {
		c.BallVel = ball.Pos().Sub(l.prevBall.Pos()).Mul(1 / c.BallDt.Seconds())
	}

	for i, e := range l.enc {
		e.Update()
		c.Angle[i] = e.Position()
	}
	ta := l.now()
	c.AngleDt = ta.Sub(l.prevAngleTime)
	l.prevAngleTime = ta
	if c.AngleDt > 0 {
		c.AngleVel = c.Angle.Sub(l.prevAngle).Mul(1 / c.AngleDt.Seconds())
	}
	l.prevAngle = c.Angle

	if ball.Contact {
		c.Torque = l.cfg.Torque(ball.Pos(), c.BallVel, c.Angle, c.AngleVel)
		c.Duty = c.Torque.Mul(l.cfg.DutyPerTorque() * dutyAttenuation)
	}
	l.command(c.Duty)

	l.prevBall = ball
	if l.observe != nil {
		l.observe(c)
	}
	return c
}

func (l *Loop) command(duty mgl64.Vec2) {
	if err := l.act.SetDuty(1, duty[AxisX]); err != nil {
		l.logger.Printf("control: set duty motor 1: %v", err)
	}
	if err := l.act.SetDuty(2, duty[AxisY]); err != nil {
		l.logger.Printf("control: set duty motor 2: %v", err)
	}
}

// Run steps the loop until ctx is done, then zeroes both motors.
// There is no fixed period; the panel scan sets the pace.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Printf("control: loop started")
	defer func() {
		l.command(mgl64.Vec2{})
		l.logger.Printf("control: loop stopped after %d cycles", l.seq)
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		l.Step()
	}
}

// Cycles returns the number of completed cycles.
func (l *Loop) Cycles() uint64 {
	return l.seq
}
