// Package config loads the balancer configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/ballbalancer/internal/control"
	"github.com/sweeney/ballbalancer/internal/encoder"
	"github.com/sweeney/ballbalancer/internal/hal"
	"github.com/sweeney/ballbalancer/internal/touch"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

const (
	DefaultPanelLength      = 0.176
	DefaultPanelWidth       = 0.100
	DefaultFullScale        = 4000
	DefaultPWMFrequency     = 20000
	DefaultSoftPWMFrequency = 500
	DefaultADCSpeedHz       = 1000000
	DefaultButtonDebounce   = 20 * time.Millisecond
	DefaultTelemetryEvery   = 50
	DefaultHTTPAddr         = ":80"
	DefaultChip             = "gpiochip0"
	DefaultBroker           = "tcp://192.168.1.200:1883"
)

// Config is the daemon configuration as stored in YAML.
type Config struct {
	Encoder    EncoderConfig    `yaml:"encoder"`
	Panel      PanelConfig      `yaml:"panel"`
	Controller ControllerConfig `yaml:"controller"`
	Motor      MotorConfig      `yaml:"motor"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// EncoderConfig describes the angle counters.
type EncoderConfig struct {
	TicksPerRev int    `yaml:"ticks_per_rev"`
	Modulus     uint32 `yaml:"modulus"`
}

// PanelConfig holds the touch panel geometry and ADC calibration.
type PanelConfig struct {
	FullScale        int        `yaml:"full_scale"`
	Length           float64    `yaml:"length"`
	Width            float64    `yaml:"width"`
	Center           [2]float64 `yaml:"center,flow"`
	ContactThreshold int        `yaml:"contact_threshold"`
}

// ControllerConfig holds the feedback gains and the ball setpoint.
type ControllerConfig struct {
	Gains    [4]float64 `yaml:"gains,flow"`
	Setpoint [2]float64 `yaml:"setpoint,flow"`
}

// MotorConfig holds motor electrical constants and PWM rates.
type MotorConfig struct {
	Resistance     float64 `yaml:"resistance"`
	SupplyVoltage  float64 `yaml:"supply_voltage"`
	TorqueConstant float64 `yaml:"torque_constant"`
	PWMFrequency   int     `yaml:"pwm_frequency"`

	// SoftPWMFrequency applies to PWM pins without a hardware channel.
	SoftPWMFrequency int `yaml:"soft_pwm_frequency"`
}

// HardwareConfig maps capabilities to BCM line numbers.
type HardwareConfig struct {
	Chip           string        `yaml:"chip"`
	PinXp          int           `yaml:"pin_xp"`
	PinXm          int           `yaml:"pin_xm"`
	PinYp          int           `yaml:"pin_yp"`
	PinYm          int           `yaml:"pin_ym"`
	ADCChannelXm   int           `yaml:"adc_channel_xm"`
	ADCChannelYm   int           `yaml:"adc_channel_ym"`
	ADCSpeedHz     int           `yaml:"adc_speed_hz"`
	Encoder1       [2]int        `yaml:"encoder1,flow"`
	Encoder2       [2]int        `yaml:"encoder2,flow"`
	PinSleep       int           `yaml:"pin_sleep"`
	PWMPins        [4]int        `yaml:"pwm_pins,flow"`
	PinFault       int           `yaml:"pin_fault"`
	PinButton      int           `yaml:"pin_button"`
	ButtonDebounce time.Duration `yaml:"button_debounce"`
}

// MQTTConfig configures publishing.
type MQTTConfig struct {
	// Broker is the MQTT server URL; empty disables publishing.
	Broker string `yaml:"broker"`
	// TelemetryEvery publishes one in N control cycles; 0 disables telemetry.
	TelemetryEvery int `yaml:"telemetry_every"`
	// Heartbeat is the system heartbeat period; 0 disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	// Addr is the listen address; empty disables the status server.
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the reference platform's configuration.
func DefaultConfig() *Config {
	return &Config{
		Encoder: EncoderConfig{
			TicksPerRev: encoder.DefaultTicksPerRev,
			Modulus:     encoder.DefaultModulus,
		},
		Panel: PanelConfig{
			FullScale:        DefaultFullScale,
			Length:           DefaultPanelLength,
			Width:            DefaultPanelWidth,
			ContactThreshold: DefaultFullScale,
		},
		Controller: ControllerConfig{
			Gains: [4]float64(control.DefaultGains),
		},
		Motor: MotorConfig{
			Resistance:       control.DefaultResistance,
			SupplyVoltage:    control.DefaultSupplyVoltage,
			TorqueConstant:   control.DefaultTorqueConstant,
			PWMFrequency:     DefaultPWMFrequency,
			SoftPWMFrequency: DefaultSoftPWMFrequency,
		},
		Hardware: HardwareConfig{
			Chip:           DefaultChip,
			PinXp:          hal.DefaultPinXp,
			PinXm:          hal.DefaultPinXm,
			PinYp:          hal.DefaultPinYp,
			PinYm:          hal.DefaultPinYm,
			ADCChannelXm:   hal.DefaultADCChannelXm,
			ADCChannelYm:   hal.DefaultADCChannelYm,
			ADCSpeedHz:     DefaultADCSpeedHz,
			Encoder1:       [2]int{5, 6},
			Encoder2:       [2]int{20, 21},
			PinSleep:       hal.DefaultPinSleep,
			PWMPins:        [4]int{12, 13, 16, 26},
			PinFault:       hal.DefaultPinFault,
			PinButton:      hal.DefaultPinButton,
			ButtonDebounce: DefaultButtonDebounce,
		},
		MQTT: MQTTConfig{
			Broker:         DefaultBroker,
			TelemetryEvery: DefaultTelemetryEvery,
			Heartbeat:      15 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: DefaultHTTPAddr,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects values the hardware or the control law cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Encoder.TicksPerRev <= 0:
		return fmt.Errorf("%w: encoder.ticks_per_rev must be positive", ErrInvalid)
	case c.Encoder.Modulus < 4:
		return fmt.Errorf("%w: encoder.modulus must be at least 4", ErrInvalid)
	case c.Panel.FullScale <= 0:
		return fmt.Errorf("%w: panel.full_scale must be positive", ErrInvalid)
	case c.Panel.Length <= 0 || c.Panel.Width <= 0:
		return fmt.Errorf("%w: panel dimensions must be positive", ErrInvalid)
	case c.Panel.ContactThreshold < 0:
		return fmt.Errorf("%w: panel.contact_threshold must not be negative", ErrInvalid)
	case c.Motor.Resistance <= 0 || c.Motor.SupplyVoltage <= 0 || c.Motor.TorqueConstant <= 0:
		return fmt.Errorf("%w: motor resistance, supply_voltage and torque_constant must be positive", ErrInvalid)
	case c.Motor.PWMFrequency <= 0:
		return fmt.Errorf("%w: motor.pwm_frequency must be positive", ErrInvalid)
	case c.Motor.SoftPWMFrequency <= 0:
		return fmt.Errorf("%w: motor.soft_pwm_frequency must be positive", ErrInvalid)
	case c.MQTT.TelemetryEvery < 0:
		return fmt.Errorf("%w: mqtt.telemetry_every must not be negative", ErrInvalid)
	case c.MQTT.Heartbeat < 0:
		return fmt.Errorf("%w: mqtt.heartbeat must not be negative", ErrInvalid)
	}
	return c.checkPins()
}

func (c *Config) checkPins() error {
	h := c.Hardware
	pins := []struct {
		name string
		pin  int
	}{
		{"pin_xp", h.PinXp}, {"pin_xm", h.PinXm}, {"pin_yp", h.PinYp}, {"pin_ym", h.PinYm},
		{"encoder1.a", h.Encoder1[0]}, {"encoder1.b", h.Encoder1[1]},
		{"encoder2.a", h.Encoder2[0]}, {"encoder2.b", h.Encoder2[1]},
		{"pin_sleep", h.PinSleep},
		{"pwm_pins[0]", h.PWMPins[0]}, {"pwm_pins[1]", h.PWMPins[1]},
		{"pwm_pins[2]", h.PWMPins[2]}, {"pwm_pins[3]", h.PWMPins[3]},
		{"pin_fault", h.PinFault}, {"pin_button", h.PinButton},
	}
	seen := make(map[int]string, len(pins))
	for _, p := range pins {
		if p.pin < 0 {
			return fmt.Errorf("%w: hardware.%s is negative", ErrInvalid, p.name)
		}
		if other, ok := seen[p.pin]; ok {
			return fmt.Errorf("%w: hardware.%s and hardware.%s share line %d", ErrInvalid, other, p.name, p.pin)
		}
		seen[p.pin] = p.name
	}
	if err := hal.CheckPWMPins(h.PWMPins); err != nil {
		return fmt.Errorf("%w: hardware.pwm_pins: %v", ErrInvalid, err)
	}
	if h.ADCChannelXm == h.ADCChannelYm {
		return fmt.Errorf("%w: adc channels must differ", ErrInvalid)
	}
	for _, ch := range []int{h.ADCChannelXm, h.ADCChannelYm} {
		if ch < 0 || ch > 7 {
			return fmt.Errorf("%w: adc channel %d out of range 0-7", ErrInvalid, ch)
		}
	}
	return nil
}

// Board returns the hardware wiring.
func (c *Config) Board() hal.BoardConfig {
	h := c.Hardware
	return hal.BoardConfig{
		Chip:             h.Chip,
		PinXp:            h.PinXp,
		PinXm:            h.PinXm,
		PinYp:            h.PinYp,
		PinYm:            h.PinYm,
		ADCChannelXm:     h.ADCChannelXm,
		ADCChannelYm:     h.ADCChannelYm,
		ADCSpeedHz:       h.ADCSpeedHz,
		EncoderA:         [2]int{h.Encoder1[0], h.Encoder2[0]},
		EncoderB:         [2]int{h.Encoder1[1], h.Encoder2[1]},
		CounterModulus:   c.Encoder.Modulus,
		PinSleep:         h.PinSleep,
		PWMPins:          h.PWMPins,
		PWMFrequency:     c.Motor.PWMFrequency,
		SoftPWMFrequency: c.Motor.SoftPWMFrequency,
		PinFault:         h.PinFault,
		PinButton:        h.PinButton,
		ButtonDebounce:   h.ButtonDebounce,
	}
}

// Touch returns the panel geometry.
func (c *Config) Touch() touch.Config {
	return touch.Config{
		Length:           c.Panel.Length,
		Width:            c.Panel.Width,
		Center:           mgl64.Vec2(c.Panel.Center),
		FullScale:        c.Panel.FullScale,
		ContactThreshold: c.Panel.ContactThreshold,
	}
}

// Control returns the feedback law parameters.
func (c *Config) Control() control.Config {
	return control.Config{
		Gains:          mgl64.Vec4(c.Controller.Gains),
		Setpoint:       mgl64.Vec2(c.Controller.Setpoint),
		Resistance:     c.Motor.Resistance,
		SupplyVoltage:  c.Motor.SupplyVoltage,
		TorqueConstant: c.Motor.TorqueConstant,
	}
}
