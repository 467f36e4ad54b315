package hal

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// hardwarePWM maps BCM pins routed to the two PWM peripheral channels.
var hardwarePWM = map[int]int{
	12: 0, 18: 0, 40: 0, 52: 0,
	13: 1, 19: 1, 41: 1, 45: 1, 53: 1,
}

// HardwarePWMChannel reports which hardware PWM channel drives pin, if any.
// Pins on the same channel always carry the same duty.
func HardwarePWMChannel(pin int) (int, bool) {
	ch, ok := hardwarePWM[pin]
	return ch, ok
}

// CheckPWMPins fails if two outputs would share a hardware PWM channel.
// Pins without hardware PWM are driven in software and never clash.
func CheckPWMPins(pins [4]int) error {
	owner := make(map[int]int, 2)
	for i, pin := range pins {
		ch, ok := HardwarePWMChannel(pin)
		if !ok {
			continue
		}
		if j, taken := owner[ch]; taken {
			return fmt.Errorf("pwm pins %d and %d share hardware channel PWM%d", pins[j], pin, ch)
		}
		owner[ch] = i
	}
	return nil
}

// SoftPWM toggles an Output from its own goroutine. The duty set by
// SetDutyPercent takes effect at the start of the next period; 0% and 100%
// hold the line steady. Write errors inside the loop are dropped.
type SoftPWM struct {
	out    Output
	period time.Duration

	duty    atomic.Uint64 // math.Float64bits of the percentage
	update  chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewSoftPWM starts driving out at freqHz with the line low.
func NewSoftPWM(out Output, freqHz int) (*SoftPWM, error) {
	if freqHz <= 0 {
		return nil, fmt.Errorf("soft pwm frequency %d must be positive", freqHz)
	}
	p := &SoftPWM{
		out:     out,
		period:  time.Second / time.Duration(freqHz),
		update:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if err := out.Set(false); err != nil {
		return nil, fmt.Errorf("soft pwm: %w", err)
	}
	go p.run()
	return p, nil
}

// SetDutyPercent sets the duty for the following periods.
func (p *SoftPWM) SetDutyPercent(pct float64) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("duty %.2f%% out of range", pct)
	}
	p.duty.Store(math.Float64bits(pct))
	select {
	case p.update <- struct{}{}:
	default:
	}
	return nil
}

// DutyPercent returns the duty most recently set.
func (p *SoftPWM) DutyPercent() float64 {
	return math.Float64frombits(p.duty.Load())
}

// Close stops the goroutine and leaves the line low.
func (p *SoftPWM) Close() error {
	p.once.Do(func() { close(p.done) })
	<-p.stopped
	return p.out.Set(false)
}

func (p *SoftPWM) run() {
	defer close(p.stopped)
	level := false
	set := func(high bool) {
		if high != level {
			p.out.Set(high)
			level = high
		}
	}

	timer := time.NewTimer(0)
	<-timer.C
	wait := func(d time.Duration) bool {
		timer.Reset(d)
		select {
		case <-timer.C:
			return true
		case <-p.done:
			timer.Stop()
			return false
		}
	}

	for {
		pct := p.DutyPercent()
		switch {
		case pct <= 0, pct >= 100:
			set(pct >= 100)
			select {
			case <-p.update:
			case <-p.done:
				return
			}
		default:
			on := time.Duration(float64(p.period) * pct / 100)
			set(true)
			if !wait(on) {
				return
			}
			set(false)
			if !wait(p.period - on) {
				return
			}
		}
	}
}
