//go:build linux

package hardware

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// echoTimeout bounds one ultrasonic measurement. An HC-SR04 echo pulse for
// anything in range is well under 40ms; past that the sensor saw nothing.
const echoTimeout = 60 * time.Millisecond

// Real drives actual line hardware through the Linux GPIO character device.
type Real struct {
	chip    *gpiocdev.Chip
	outputs map[Actuator]*gpiocdev.Line
	sensors map[Channel]sensorLines
}

type sensorLines struct {
	trigger *gpiocdev.Line
	echo    *gpiocdev.Line
}

// NewReal opens gpiochip0 and requests every actuator and sensor line.
// Actuator lines start de-energized.
func NewReal() (*Real, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	h := &Real{
		chip:    chip,
		outputs: make(map[Actuator]*gpiocdev.Line),
		sensors: make(map[Channel]sensorLines),
	}

	outputPins := map[Actuator]int{
		ActuatorConveyor:  PinConveyor,
		ActuatorCapFeeder: PinCapFeeder,
		ActuatorFill:      PinFill,
		ActuatorCap:       PinCap,
		ActuatorPush:      PinPush,
	}
	for a, pin := range outputPins {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("request %s output pin %d: %w", a, pin, err)
		}
		h.outputs[a] = line
	}

	sensorPins := map[Channel][2]int{
		ChannelBottle:    {PinBottleTrigger, PinBottleEcho},
		ChannelCapLoaded: {PinCapLoadedTrigger, PinCapLoadedEcho},
		ChannelCapFull:   {PinCapFullTrigger, PinCapFullEcho},
	}
	for ch, pins := range sensorPins {
		trigger, err := chip.RequestLine(pins[0], gpiocdev.AsOutput(0))
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("request %s trigger pin %d: %w", ch, pins[0], err)
		}
		echo, err := chip.RequestLine(pins[1], gpiocdev.AsInput)
		if err != nil {
			trigger.Close()
			h.Close()
			return nil, fmt.Errorf("request %s echo pin %d: %w", ch, pins[1], err)
		}
		h.sensors[ch] = sensorLines{trigger: trigger, echo: echo}
	}

	return h, nil
}

// TakeReading fires the channel's trigger and times the echo pulse.
// Returns the pulse duration in microseconds.
func (h *Real) TakeReading(ch Channel) (float64, error) {
	s, ok := h.sensors[ch]
	if !ok {
		return 0, fmt.Errorf("unknown sensor channel %q", ch)
	}

	if err := s.trigger.SetValue(1); err != nil {
		return 0, fmt.Errorf("%s trigger high: %w", ch, err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := s.trigger.SetValue(0); err != nil {
		return 0, fmt.Errorf("%s trigger low: %w", ch, err)
	}

	deadline := time.Now().Add(echoTimeout)

	// Wait for the echo line to rise.
	for {
		v, err := s.echo.Value()
		if err != nil {
			return 0, fmt.Errorf("%s echo read: %w", ch, err)
		}
		if v != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("%s echo: no pulse within %v", ch, echoTimeout)
		}
	}

	// Time how long it stays high.
	start := time.Now()
	for {
		v, err := s.echo.Value()
		if err != nil {
			return 0, fmt.Errorf("%s echo read: %w", ch, err)
		}
		if v == 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("%s echo: pulse did not end within %v", ch, echoTimeout)
		}
	}

	return float64(time.Since(start).Microseconds()), nil
}

// Set writes one actuator line. Write failures are logged nowhere and cannot
// be retried meaningfully; the next control tick rewrites the line anyway.
func (h *Real) Set(a Actuator, energized bool) {
	line, ok := h.outputs[a]
	if !ok {
		return
	}
	v := 0
	if energized {
		v = 1
	}
	line.SetValue(v)
}

// AllOff drives every actuator line low.
func (h *Real) AllOff() {
	for _, line := range h.outputs {
		line.SetValue(0)
	}
}

// Close drives all outputs low and releases every requested line.
func (h *Real) Close() error {
	var errs []error

	h.AllOff()
	for a, line := range h.outputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s line: %w", a, err))
		}
	}
	for ch, s := range h.sensors {
		if s.trigger != nil {
			if err := s.trigger.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s trigger: %w", ch, err))
			}
		}
		if s.echo != nil {
			if err := s.echo.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s echo: %w", ch, err))
			}
		}
	}
	if h.chip != nil {
		if err := h.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
