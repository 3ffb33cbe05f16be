// Package settings holds the line's process parameters: capability toggles,
// phase durations, presence thresholds, and the sensor averaging window.
// Parameters live in a flat YAML file and may be changed at runtime through
// the HTTP endpoint; every getter reads the current value, so a change takes
// effect on the next control decision rather than mid-phase.
package settings

import (
	"fmt"
	"sync"
	"time"
)

// Settings is the flat parameter record, as stored on disk.
type Settings struct {
	FillingEnabled bool `yaml:"filling_enabled" json:"filling_enabled"`
	CappingEnabled bool `yaml:"capping_enabled" json:"capping_enabled"`

	// Durations in milliseconds.
	PushMs        int64 `yaml:"push_ms" json:"push_ms"`
	FillMs        int64 `yaml:"fill_ms" json:"fill_ms"`
	CapMs         int64 `yaml:"cap_ms" json:"cap_ms"`
	PostPushMs    int64 `yaml:"post_push_ms" json:"post_push_ms"`
	PostFillMs    int64 `yaml:"post_fill_ms" json:"post_fill_ms"`
	PositioningMs int64 `yaml:"positioning_ms" json:"positioning_ms"`

	// Presence thresholds in distance units (echo microseconds).
	BottleThreshold    float64 `yaml:"bottle_threshold" json:"bottle_threshold"`
	CapLoadedThreshold float64 `yaml:"cap_loaded_threshold" json:"cap_loaded_threshold"`
	CapFullThreshold   float64 `yaml:"cap_full_threshold" json:"cap_full_threshold"`

	// RollingWindow is the number of recent readings averaged per sensor.
	RollingWindow int `yaml:"rolling_window" json:"rolling_window"`
}

// Default returns the line's stock configuration.
func Default() Settings {
	return Settings{
		FillingEnabled:     true,
		CappingEnabled:     false,
		PushMs:             3000,
		FillMs:             32000,
		CapMs:              2000,
		PostPushMs:         3000,
		PostFillMs:         1000,
		PositioningMs:      1000,
		BottleThreshold:    200,
		CapLoadedThreshold: 160,
		CapFullThreshold:   160,
		RollingWindow:      5,
	}
}

// Validate rejects values that could wedge or damage the line. The rolling
// window is deliberately not range-checked here: it is clamped at every read
// site instead, so an out-of-range stored value is harmless.
func (s Settings) Validate() error {
	for _, d := range []struct {
		name string
		ms   int64
	}{
		{"push_ms", s.PushMs},
		{"fill_ms", s.FillMs},
		{"cap_ms", s.CapMs},
		{"post_push_ms", s.PostPushMs},
		{"post_fill_ms", s.PostFillMs},
		{"positioning_ms", s.PositioningMs},
	} {
		if d.ms < 0 {
			return fmt.Errorf("settings: %s must not be negative, got %d", d.name, d.ms)
		}
	}
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"bottle_threshold", s.BottleThreshold},
		{"cap_loaded_threshold", s.CapLoadedThreshold},
		{"cap_full_threshold", s.CapFullThreshold},
	} {
		if th.v <= 0 {
			return fmt.Errorf("settings: %s must be positive, got %v", th.name, th.v)
		}
	}
	return nil
}

// Store holds the current settings behind an RWMutex. The control loop reads
// it on every decision; the HTTP handler replaces it on operator updates.
type Store struct {
	mu   sync.RWMutex
	s    Settings
	path string
}

// NewStore creates a Store with the given initial settings and no backing
// file. Used in tests and by Load.
func NewStore(s Settings) *Store {
	return &Store{s: s}
}

// Get returns a copy of the current settings.
func (st *Store) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// Update validates, applies, and persists new settings.
func (st *Store) Update(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	st.s = s
	path := st.path
	st.mu.Unlock()

	if path == "" {
		return nil
	}
	return save(path, s)
}

// Path returns the backing file path ("" when not file-backed).
func (st *Store) Path() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.path
}

// FillingEnabled reports whether fill phases run.
func (st *Store) FillingEnabled() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.FillingEnabled
}

// CappingEnabled reports whether cap phases and cap sensors are in use.
func (st *Store) CappingEnabled() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.CappingEnabled
}

// PushTime returns the push actuator energize duration.
func (st *Store) PushTime() time.Duration { return st.ms(func(s Settings) int64 { return s.PushMs }) }

// FillTime returns the fill actuator energize duration.
func (st *Store) FillTime() time.Duration { return st.ms(func(s Settings) int64 { return s.FillMs }) }

// CapTime returns the cap actuator energize duration.
func (st *Store) CapTime() time.Duration { return st.ms(func(s Settings) int64 { return s.CapMs }) }

// PostPushDelay returns the settle delay after a push.
func (st *Store) PostPushDelay() time.Duration {
	return st.ms(func(s Settings) int64 { return s.PostPushMs })
}

// PostFillDelay returns the settle delay after a fill.
func (st *Store) PostFillDelay() time.Duration {
	return st.ms(func(s Settings) int64 { return s.PostFillMs })
}

// PositioningDelay returns how long the conveyor keeps running after bottle
// detection to seat the bottle.
func (st *Store) PositioningDelay() time.Duration {
	return st.ms(func(s Settings) int64 { return s.PositioningMs })
}

// BottleThreshold returns the bottle presence threshold.
func (st *Store) BottleThreshold() float64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.BottleThreshold
}

// CapLoadedThreshold returns the cap-loaded presence threshold.
func (st *Store) CapLoadedThreshold() float64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.CapLoadedThreshold
}

// CapFullThreshold returns the hopper-full presence threshold.
func (st *Store) CapFullThreshold() float64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.CapFullThreshold
}

// Window returns the configured rolling window, unclamped. Readers clamp it
// to their buffer capacity.
func (st *Store) Window() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.RollingWindow
}

func (st *Store) ms(field func(Settings) int64) time.Duration {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return time.Duration(field(st.s)) * time.Millisecond
}
