// Package filter maintains per-channel rolling averages over raw sensor
// readings. It is the debounce layer between the noisy ultrasonic hardware
// and the presence decisions: a channel only reports a real distance once
// its window has warmed up, and implausible readings collapse to a safe
// "far" value.
package filter

import (
	"fmt"

	"github.com/sweeney/bottle-filler/internal/hardware"
)

const (
	// MaxWindow is the fixed capacity of every channel buffer. The
	// effective averaging window is configured at runtime and may be
	// anything in [1, MaxWindow].
	MaxWindow = 16

	// FarDistance is the sentinel returned while a buffer warms up or
	// when the sensor reading is implausible. It is far beyond every
	// presence threshold, so it always reads as "absent".
	FarDistance = 1000.0

	// faultEpsilon is the floor below which a mean is treated as a sensor
	// fault (phantom echo, disconnected sensor) rather than a distance.
	faultEpsilon = 0.01
)

// WindowSource supplies the effective averaging window. It is consulted on
// every sample so a runtime settings change takes effect immediately.
type WindowSource interface {
	Window() int
}

// Registry holds one rolling buffer per registered sensor channel.
// Not safe for concurrent use; the control loop is the only caller.
type Registry struct {
	sampler     hardware.Sampler
	window      WindowSource
	maxChannels int
	buffers     map[hardware.Channel]*buffer
}

type buffer struct {
	readings [MaxWindow]float64
	index    int // next write position
	total    int // monotonically increasing read count
}

// NewRegistry creates a Registry reading raw values from sampler. At most
// maxChannels distinct channels may be registered.
func NewRegistry(sampler hardware.Sampler, window WindowSource, maxChannels int) *Registry {
	return &Registry{
		sampler:     sampler,
		window:      window,
		maxChannels: maxChannels,
		buffers:     make(map[hardware.Channel]*buffer, maxChannels),
	}
}

// Register creates the channel's buffer if it does not exist yet. It returns
// an error once the channel limit is reached, so a misconfigured channel set
// fails at startup instead of silently aliasing buffers at runtime.
func (r *Registry) Register(ch hardware.Channel) error {
	if _, ok := r.buffers[ch]; ok {
		return nil
	}
	if len(r.buffers) >= r.maxChannels {
		return fmt.Errorf("filter: channel limit %d reached, cannot register %q", r.maxChannels, ch)
	}
	r.buffers[ch] = &buffer{}
	return nil
}

// Registered reports how many channels have buffers.
func (r *Registry) Registered() int {
	return len(r.buffers)
}

// TotalReads returns the channel's lifetime read count (0 if unregistered).
func (r *Registry) TotalReads(ch hardware.Channel) int {
	if b, ok := r.buffers[ch]; ok {
		return b.total
	}
	return 0
}

// Sample takes one raw reading from the channel, appends it to the channel's
// buffer, and returns the filtered distance:
//
//   - FarDistance until the buffer holds at least one effective window of
//     readings (warm-up guard: a half-filled buffer never reports presence),
//   - FarDistance when the raw read fails or the mean is implausibly near
//     zero (fail toward "absent"),
//   - otherwise the mean of the most recent effective-window readings.
//
// Unknown channels register lazily; if the registry is full the reading is
// discarded and FarDistance returned.
func (r *Registry) Sample(ch hardware.Channel) float64 {
	b, ok := r.buffers[ch]
	if !ok {
		if err := r.Register(ch); err != nil {
			return FarDistance
		}
		b = r.buffers[ch]
	}

	raw, err := r.sampler.TakeReading(ch)
	if err != nil {
		// A failed measurement is indistinguishable from "nothing in
		// range" for control purposes.
		return FarDistance
	}

	b.readings[b.index] = raw
	b.index = (b.index + 1) % MaxWindow
	b.total++

	w := clampWindow(r.window.Window())
	if b.total < w {
		return FarDistance
	}

	mean := b.mean(w)
	if mean < faultEpsilon {
		return FarDistance
	}
	return mean
}

// mean averages the w most recent readings, walking backward from the write
// cursor. Caller guarantees 1 <= w <= MaxWindow and total >= w.
func (b *buffer) mean(w int) float64 {
	sum := 0.0
	i := b.index
	for n := 0; n < w; n++ {
		i--
		if i < 0 {
			i = MaxWindow - 1
		}
		sum += b.readings[i]
	}
	return sum / float64(w)
}

// clampWindow forces the configured window into [1, MaxWindow]. Clamping at
// every read site means a stale out-of-range stored value can never reach
// the mean computation.
func clampWindow(w int) int {
	if w < 1 {
		return 1
	}
	if w > MaxWindow {
		return MaxWindow
	}
	return w
}
