package hal

import (
	"fmt"
	"time"
)

// Terminals groups the four touch panel terminals.
type Terminals struct {
	Xp, Xm, Yp, Ym Terminal
}

// BoardConfig describes how the capabilities are wired (BCM numbering).
type BoardConfig struct {
	Chip string

	PinXp, PinXm, PinYp, PinYm int
	ADCChannelXm, ADCChannelYm int
	ADCSpeedHz                 int

	// EncoderA and EncoderB hold the phase lines of encoder 1 and 2.
	EncoderA       [2]int
	EncoderB       [2]int
	CounterModulus uint32

	PinSleep int

	// PWMPins drive motor 1 A/B then motor 2 A/B. Pins without hardware
	// PWM are toggled in software at SoftPWMFrequency.
	PWMPins          [4]int
	PWMFrequency     int
	SoftPWMFrequency int

	PinFault       int
	PinButton      int
	ButtonDebounce time.Duration
}

// Board holds every capability of the balancing platform.
type Board struct {
	Terminals Terminals
	Counters  [2]Counter
	Sleep     Output
	// Channels holds motor 1 A/B then motor 2 A/B.
	Channels [4]PWM
	Fault    EdgeInput
	Button   EdgeInput

	closers []func() error
}

// Close releases hardware in reverse order of acquisition.
func (b *Board) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (b *Board) onClose(f func() error) {
	b.closers = append(b.closers, f)
}
