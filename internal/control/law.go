package control

import "github.com/go-gl/mathgl/mgl64"

// Axis indexes for planar and angular vectors. Encoder 1 measures tilt
// about X and drives motor 1; encoder 2 and motor 2 belong to Y.
const (
	AxisX = 0
	AxisY = 1
)

// DefaultGains is the reference tuning of the feedback law.
var DefaultGains = mgl64.Vec4{90, -10, 75, -47}

// Motor electrical constants of the reference platform.
const (
	DefaultResistance     = 2.21   // ohm
	DefaultSupplyVoltage  = 12     // volt
	DefaultTorqueConstant = 0.0138 // N·m/A
)

// axisInputs selects, per motor axis, which ball axis and which tilt axis
// feed the law. Tilting about one axis rolls the ball along the other, so
// the linear terms come from the orthogonal axis.
var axisInputs = [2]struct{ linear, angular int }{
	AxisX: {linear: AxisY, angular: AxisX},
	AxisY: {linear: AxisX, angular: AxisY},
}

// Config holds the feedback gains and the motor electrical constants.
type Config struct {
	// Gains weight [linear velocity, angular velocity, linear position, angle].
	Gains    mgl64.Vec4
	Setpoint mgl64.Vec2

	Resistance     float64
	SupplyVoltage  float64
	TorqueConstant float64
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		Gains:          DefaultGains,
		Resistance:     DefaultResistance,
		SupplyVoltage:  DefaultSupplyVoltage,
		TorqueConstant: DefaultTorqueConstant,
	}
}

// DutyPerTorque converts motor torque to duty: R / (Vdc * Kt).
func (c Config) DutyPerTorque() float64 {
	return c.Resistance / (c.SupplyVoltage * c.TorqueConstant)
}

// Torque evaluates the state-feedback law for both axes:
// T = -(K0*v + K1*ω + K2*p + K3*θ), with v and p taken from the
// orthogonal ball axis. pos is relative to the platform center.
func (c Config) Torque(pos, vel, angle, angleVel mgl64.Vec2) mgl64.Vec2 {
	var out mgl64.Vec2
	pos = pos.Sub(c.Setpoint)
	for axis, in := range axisInputs {
		x := mgl64.Vec4{vel[in.linear], angleVel[in.angular], pos[in.linear], angle[in.angular]}
		out[axis] = -c.Gains.Dot(x)
	}
	return out
}
