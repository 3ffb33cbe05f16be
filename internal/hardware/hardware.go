// Package hardware abstracts the filling line's physical I/O: ultrasonic
// distance sensors read by pulse timing, and binary actuator outputs.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package hardware

// Channel identifies one ultrasonic sensor (a trigger/echo pin pair).
type Channel string

const (
	// ChannelBottle detects a bottle in the push position.
	ChannelBottle Channel = "bottle"
	// ChannelCapLoaded detects a cap loaded onto the bottle track.
	ChannelCapLoaded Channel = "cap_loaded"
	// ChannelCapFull detects whether the cap hopper is full.
	ChannelCapFull Channel = "cap_full"
)

// Actuator identifies one binary output on the line.
type Actuator string

const (
	ActuatorConveyor  Actuator = "conveyor"
	ActuatorCapFeeder Actuator = "cap_feeder"
	ActuatorFill      Actuator = "fill"
	ActuatorCap       Actuator = "cap"
	ActuatorPush      Actuator = "push"
)

// Actuators lists every output on the line, in a stable order.
var Actuators = []Actuator{
	ActuatorConveyor,
	ActuatorCapFeeder,
	ActuatorFill,
	ActuatorCap,
	ActuatorPush,
}

// Sampler takes raw distance readings from sensor channels.
type Sampler interface {
	// TakeReading triggers one measurement on the channel and returns the
	// echo pulse duration in microseconds. Blocks for at most a few tens
	// of milliseconds.
	TakeReading(ch Channel) (float64, error)
}

// Outputs drives the line's actuators. Writes are fire-and-forget.
type Outputs interface {
	// Set energizes or de-energizes a single actuator.
	Set(a Actuator, energized bool)

	// AllOff drives every actuator to its de-energized state. Safe to
	// call at any time, including repeatedly.
	AllOff()
}

// Pin assignments (BCM numbering).
const (
	PinConveyor  = 14
	PinCapFeeder = 27
	PinFill      = 25
	PinCap       = 33
	PinPush      = 32

	PinBottleTrigger    = 4
	PinBottleEcho       = 2
	PinCapFullTrigger   = 23
	PinCapFullEcho      = 22
	PinCapLoadedTrigger = 18
	PinCapLoadedEcho    = 5
)
