package control

import (
	"github.com/sweeney/bottle-filler/internal/filter"
	"github.com/sweeney/bottle-filler/internal/hardware"
	"github.com/sweeney/bottle-filler/internal/settings"
)

// Detector turns filtered distances into presence decisions.
//
// These are not pure queries: every call re-asserts the actuator policy tied
// to its sensor (conveyor for the bottle, hopper feeder for the caps).
// Polling presence is how those actuators are kept driven while the
// sequencer is blocked on something else, so tests assert both the returned
// boolean and the actuator state after every call.
type Detector struct {
	sensors *filter.Registry
	out     hardware.Outputs
	cfg     *settings.Store
}

// NewDetector creates a Detector reading filtered distances from sensors and
// thresholds from cfg.
func NewDetector(sensors *filter.Registry, out hardware.Outputs, cfg *settings.Store) *Detector {
	return &Detector{sensors: sensors, out: out, cfg: cfg}
}

// BottleLoaded reports whether a bottle sits in the push position.
// Side effect: the conveyor runs while no bottle is present and stops the
// moment one is (the bottle blocks the lane).
func (d *Detector) BottleLoaded() bool {
	distance := d.sensors.Sample(hardware.ChannelBottle)
	present := distance < d.cfg.BottleThreshold()
	d.out.Set(hardware.ActuatorConveyor, !present)
	return present
}

// CapHopperFull reports whether the cap hopper is topped up.
// Side effect: the hopper feeder runs until the hopper is full.
// With capping disabled the feeder is forced off and the hopper reported
// full without touching the sensor.
func (d *Detector) CapHopperFull() bool {
	if !d.cfg.CappingEnabled() {
		d.out.Set(hardware.ActuatorCapFeeder, false)
		return true
	}
	distance := d.sensors.Sample(hardware.ChannelCapFull)
	full := distance < d.cfg.CapFullThreshold()
	d.out.Set(hardware.ActuatorCapFeeder, !full)
	return full
}

// CapLoaded reports whether a cap is staged over the bottle track. It also
// runs the hopper-full check for its feeder side effect, independent of
// whether a cap is currently staged.
//
// With capping disabled this is a pure short-circuit: feeder off, report
// loaded, zero sensor reads. Cap-wait loops fall straight through.
func (d *Detector) CapLoaded() bool {
	if !d.cfg.CappingEnabled() {
		d.out.Set(hardware.ActuatorCapFeeder, false)
		return true
	}
	d.CapHopperFull()
	distance := d.sensors.Sample(hardware.ChannelCapLoaded)
	return distance < d.cfg.CapLoadedThreshold()
}
