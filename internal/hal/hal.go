// Package hal defines the hardware capabilities the balancer core needs.
// The real implementation uses the Linux GPIO character device and the
// BCM283x peripherals. The fake implementation allows testing without hardware.
package hal

// Mode is the electrical role of a touch panel terminal.
type Mode int

const (
	ModeFloat Mode = iota
	ModeDriveHigh
	ModeDriveLow
	ModeAnalog
)

func (m Mode) String() string {
	switch m {
	case ModeFloat:
		return "FLOAT"
	case ModeDriveHigh:
		return "HIGH"
	case ModeDriveLow:
		return "LOW"
	case ModeAnalog:
		return "ANALOG"
	}
	return "UNKNOWN"
}

// Terminal is one of the four bidirectional touch panel terminals.
type Terminal interface {
	// Configure switches the terminal into the given role.
	Configure(m Mode) error

	// ReadAnalog samples the terminal voltage as a raw ADC code.
	// Only valid while the terminal is in ModeAnalog.
	ReadAnalog() (int, error)
}

// Counter is a free-running quadrature counter.
type Counter interface {
	// Count returns the raw counter value in [0, modulus).
	Count() uint32
}

// PWM is a single duty-cycle output channel.
type PWM interface {
	// SetDutyPercent programs the duty cycle, 0 to 100.
	SetDutyPercent(pct float64) error
}

// Output is a single digital output line.
type Output interface {
	Set(high bool) error
}

// EdgeInput delivers falling edges of a digital input to a handler.
// The handler runs on the delivering goroutine and must not block.
type EdgeInput interface {
	// Watch binds the handler and starts edge delivery.
	Watch(handler func()) error

	// Disarm masks delivery. Edges arriving while disarmed are dropped.
	Disarm()

	// Arm unmasks delivery.
	Arm()

	// Close releases the input.
	Close() error
}

// Pin definitions (BCM numbering) for the reference wiring.
const (
	DefaultPinXp     = 7
	DefaultPinXm     = 8
	DefaultPinYp     = 25
	DefaultPinYm     = 24
	DefaultPinSleep  = 4
	DefaultPinFault  = 17
	DefaultPinButton = 27
)

// Default MCP3208 channels wired to the terminals that are sampled.
const (
	DefaultADCChannelXm = 0
	DefaultADCChannelYm = 1
)
