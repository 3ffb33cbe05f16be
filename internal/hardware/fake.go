package hardware

import "fmt"

// FakeSampler is a test double that returns scripted distance readings.
type FakeSampler struct {
	// Readings contains scripted values per channel. Each TakeReading on a
	// channel consumes the next value; when a channel's script is
	// exhausted, the last value repeats.
	Readings map[Channel][]float64

	// Reads counts TakeReading calls per channel.
	Reads map[Channel]int

	// Err, if set, is returned by every TakeReading call.
	Err error

	index map[Channel]int
}

// NewFakeSampler creates a FakeSampler with the given per-channel scripts.
func NewFakeSampler(readings map[Channel][]float64) *FakeSampler {
	return &FakeSampler{
		Readings: readings,
		Reads:    make(map[Channel]int),
		index:    make(map[Channel]int),
	}
}

// FixedSampler creates a FakeSampler that returns a constant value per channel.
func FixedSampler(values map[Channel]float64) *FakeSampler {
	readings := make(map[Channel][]float64, len(values))
	for ch, v := range values {
		readings[ch] = []float64{v}
	}
	return NewFakeSampler(readings)
}

// TakeReading returns the next scripted value for the channel.
func (f *FakeSampler) TakeReading(ch Channel) (float64, error) {
	f.Reads[ch]++
	if f.Err != nil {
		return 0, f.Err
	}

	script, ok := f.Readings[ch]
	if !ok || len(script) == 0 {
		return 0, fmt.Errorf("no readings scripted for channel %q", ch)
	}

	i := f.index[ch]
	if i < len(script)-1 {
		f.index[ch] = i + 1
	}
	return script[i], nil
}

// SetDistance replaces the channel's script with a single constant value,
// taking effect on the next read.
func (f *FakeSampler) SetDistance(ch Channel, v float64) {
	if f.Readings == nil {
		f.Readings = make(map[Channel][]float64)
	}
	f.Readings[ch] = []float64{v}
	f.index[ch] = 0
}

// FakeOutputs records actuator writes for test assertions.
type FakeOutputs struct {
	// States holds the last written value per actuator.
	States map[Actuator]bool

	// History records every Set call in order.
	History []OutputWrite

	// AllOffCalls counts AllOff invocations.
	AllOffCalls int
}

// OutputWrite is one recorded Set call.
type OutputWrite struct {
	Actuator  Actuator
	Energized bool
}

// NewFakeOutputs creates a FakeOutputs with all actuators de-energized.
func NewFakeOutputs() *FakeOutputs {
	states := make(map[Actuator]bool, len(Actuators))
	for _, a := range Actuators {
		states[a] = false
	}
	return &FakeOutputs{States: states}
}

// Set records the write.
func (f *FakeOutputs) Set(a Actuator, energized bool) {
	f.States[a] = energized
	f.History = append(f.History, OutputWrite{Actuator: a, Energized: energized})
}

// AllOff drives every actuator off and records the call.
func (f *FakeOutputs) AllOff() {
	f.AllOffCalls++
	for _, a := range Actuators {
		f.States[a] = false
	}
}

// AnyEnergized reports whether any actuator is currently energized.
func (f *FakeOutputs) AnyEnergized() bool {
	for _, on := range f.States {
		if on {
			return true
		}
	}
	return false
}
