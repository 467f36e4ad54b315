//go:build linux

package hal

import (
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"github.com/warthog618/go-gpiocdev"
)

// pwmCycle is the number of PWM clock ticks per output period.
const pwmCycle = 200

// OpenBoard requests every line and peripheral described by cfg.
// On failure, anything already acquired is released.
func OpenBoard(cfg BoardConfig) (*Board, error) {
	b := &Board{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open bcm283x registers: %w", err)
	}
	b.onClose(rpio.Close)

	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		return nil, fmt.Errorf("begin spi0: %w", err)
	}
	rpio.SpiSpeed(cfg.ADCSpeedHz)
	rpio.SpiChipSelect(0)
	b.onClose(func() error {
		rpio.SpiEnd(rpio.Spi0)
		return nil
	})
	adc := &mcp3208{}

	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	b.onClose(chip.Close)

	terminal := func(name string, pin, channel int) (*gpioTerminal, error) {
		line, err := chip.RequestLine(pin, gpiocdev.AsInput)
		if err != nil {
			return nil, fmt.Errorf("request %s pin %d: %w", name, pin, err)
		}
		b.onClose(line.Close)
		return &gpioTerminal{line: line, adc: adc, channel: channel}, nil
	}
	xp, err := terminal("Xp", cfg.PinXp, -1)
	if err != nil {
		return nil, err
	}
	xm, err := terminal("Xm", cfg.PinXm, cfg.ADCChannelXm)
	if err != nil {
		return nil, err
	}
	yp, err := terminal("Yp", cfg.PinYp, -1)
	if err != nil {
		return nil, err
	}
	ym, err := terminal("Ym", cfg.PinYm, cfg.ADCChannelYm)
	if err != nil {
		return nil, err
	}
	b.Terminals = Terminals{Xp: xp, Xm: xm, Yp: yp, Ym: ym}

	for i := range b.Counters {
		c, err := newQuadratureCounter(chip, cfg.EncoderA[i], cfg.EncoderB[i], cfg.CounterModulus)
		if err != nil {
			return nil, fmt.Errorf("encoder %d: %w", i+1, err)
		}
		b.onClose(c.Close)
		b.Counters[i] = c
	}

	// Sleep starts low: the driver stays disabled until explicitly enabled.
	sleep, err := chip.RequestLine(cfg.PinSleep, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request sleep pin %d: %w", cfg.PinSleep, err)
	}
	b.onClose(func() error {
		sleep.SetValue(0)
		return sleep.Close()
	})
	b.Sleep = &gpioOutput{line: sleep}

	if err := CheckPWMPins(cfg.PWMPins); err != nil {
		return nil, err
	}
	for i, pin := range cfg.PWMPins {
		if _, ok := HardwarePWMChannel(pin); ok {
			p := newRPIOPWM(pin, cfg.PWMFrequency)
			b.Channels[i] = p
			b.onClose(func() error { return p.SetDutyPercent(0) })
			continue
		}
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			return nil, fmt.Errorf("request pwm pin %d: %w", pin, err)
		}
		b.onClose(line.Close)
		p, err := NewSoftPWM(&gpioOutput{line: line}, cfg.SoftPWMFrequency)
		if err != nil {
			return nil, fmt.Errorf("pwm pin %d: %w", pin, err)
		}
		b.onClose(p.Close)
		b.Channels[i] = p
	}

	fault := &gpioEdge{chip: chip, offset: cfg.PinFault}
	b.onClose(fault.Close)
	b.Fault = fault

	button := &gpioEdge{chip: chip, offset: cfg.PinButton, debounce: cfg.ButtonDebounce}
	b.onClose(button.Close)
	b.Button = button

	ok = true
	return b, nil
}

// mcp3208 reads single-ended channels of an MCP3208 on SPI0 CE0.
type mcp3208 struct {
	mu sync.Mutex
}

func (a *mcp3208) read(channel int) (int, error) {
	if channel < 0 || channel > 7 {
		return 0, fmt.Errorf("adc channel %d out of range", channel)
	}
	buf := []byte{0x06 | byte(channel>>2), byte(channel&3) << 6, 0}
	a.mu.Lock()
	rpio.SpiExchange(buf)
	a.mu.Unlock()
	return int(buf[1]&0x0f)<<8 | int(buf[2]), nil
}

// gpioTerminal switches a touch panel terminal between driven and
// high-impedance states. Analog reads go through the shared ADC.
type gpioTerminal struct {
	line    *gpiocdev.Line
	adc     *mcp3208
	channel int
	mode    Mode
}

func (t *gpioTerminal) Configure(m Mode) error {
	var err error
	switch m {
	case ModeDriveHigh:
		err = t.line.Reconfigure(gpiocdev.AsOutput(1))
	case ModeDriveLow:
		err = t.line.Reconfigure(gpiocdev.AsOutput(0))
	case ModeFloat, ModeAnalog:
		err = t.line.Reconfigure(gpiocdev.AsInput)
	default:
		return fmt.Errorf("unknown terminal mode %d", m)
	}
	if err != nil {
		return fmt.Errorf("configure terminal %s: %w", m, err)
	}
	t.mode = m
	return nil
}

func (t *gpioTerminal) ReadAnalog() (int, error) {
	if t.channel < 0 {
		return 0, fmt.Errorf("terminal has no adc channel")
	}
	if t.mode != ModeAnalog {
		return 0, fmt.Errorf("terminal in %s mode, not ANALOG", t.mode)
	}
	return t.adc.read(t.channel)
}

// quadratureCounter decodes an encoder from both edges of its phase lines.
type quadratureCounter struct {
	*QuadratureDecoder
	offsetA int
	levels  [2]bool
	lines   *gpiocdev.Lines
}

func newQuadratureCounter(chip *gpiocdev.Chip, a, b int, modulus uint32) (*quadratureCounter, error) {
	// Sample the idle levels first so the decoder starts in phase.
	probe, err := chip.RequestLines([]int{a, b}, gpiocdev.AsInput)
	if err != nil {
		return nil, fmt.Errorf("request phase lines %d,%d: %w", a, b, err)
	}
	vals := make([]int, 2)
	err = probe.Values(vals)
	probe.Close()
	if err != nil {
		return nil, fmt.Errorf("read phase lines: %w", err)
	}

	c := &quadratureCounter{offsetA: a}
	c.levels = [2]bool{vals[0] == 1, vals[1] == 1}
	c.QuadratureDecoder = NewQuadratureDecoder(modulus, c.levels[0], c.levels[1])

	lines, err := chip.RequestLines([]int{a, b},
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(c.onEvent))
	if err != nil {
		return nil, fmt.Errorf("watch phase lines %d,%d: %w", a, b, err)
	}
	c.lines = lines
	return c, nil
}

// onEvent runs on the gpiocdev watcher goroutine; events arrive in order.
func (c *quadratureCounter) onEvent(evt gpiocdev.LineEvent) {
	idx := 1
	if evt.Offset == c.offsetA {
		idx = 0
	}
	c.levels[idx] = evt.Type == gpiocdev.LineEventRisingEdge
	c.Edge(c.levels[0], c.levels[1])
}

func (c *quadratureCounter) Close() error {
	return c.lines.Close()
}

// gpioOutput drives a single output line.
type gpioOutput struct {
	line *gpiocdev.Line
}

func (o *gpioOutput) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set output: %w", err)
	}
	return nil
}

// rpioPWM is a hardware PWM channel on a BCM283x PWM-capable pin.
// Only one pin per channel may be in use.
type rpioPWM struct {
	pin rpio.Pin
}

func newRPIOPWM(pin, freqHz int) *rpioPWM {
	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	p.Freq(freqHz * pwmCycle)
	p.DutyCycle(0, pwmCycle)
	return &rpioPWM{pin: p}
}

func (p *rpioPWM) SetDutyPercent(pct float64) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("duty %.2f%% out of range", pct)
	}
	p.pin.DutyCycle(uint32(pct*pwmCycle/100+0.5), pwmCycle)
	return nil
}

// gpioEdge delivers falling edges of a pulled-up, active-low input.
type gpioEdge struct {
	edgeGate
	chip     *gpiocdev.Chip
	offset   int
	debounce time.Duration

	mu   sync.Mutex
	line *gpiocdev.Line
}

func (e *gpioEdge) Watch(handler func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.line != nil {
		return fmt.Errorf("pin %d already watched", e.offset)
	}
	e.bind(handler)

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(e.onEvent),
	}
	if e.debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(e.debounce))
	}
	line, err := e.chip.RequestLine(e.offset, opts...)
	if err != nil {
		return fmt.Errorf("request edge pin %d: %w", e.offset, err)
	}
	e.line = line
	return nil
}

func (e *gpioEdge) onEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	e.fire()
}

func (e *gpioEdge) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Disarm()
	if e.line == nil {
		return nil
	}
	err := e.line.Close()
	e.line = nil
	return err
}
