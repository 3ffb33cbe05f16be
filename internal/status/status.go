// Package status provides a thread-safe status tracker for the bottle-filler
// daemon. It is read by the HTTP handlers and serialized into MQTT system
// events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/bottle-filler/internal/control"
	"github.com/sweeney/bottle-filler/internal/settings"
)

// Config contains daemon configuration for display.
type Config struct {
	QuantumMs    int64
	HeartbeatMs  int64
	Broker       string
	HTTPAddr     string
	SettingsPath string
}

// Counts tracks completed phases and cycles since startup.
type Counts struct {
	Pushes int
	Fills  int
	Caps   int
	Cycles int
	Aborts int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	RunState      control.State
	Phase         control.Phase
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Settings      settings.Settings
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind a mutex. It implements
// control.Observer so the sequencer reports phases directly into it.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	cfg  *settings.Store
}

// NewTracker creates a Tracker with the given start time and config.
// Settings are read live from the store on every Snapshot.
func NewTracker(startTime time.Time, cfg Config, store *settings.Store) *Tracker {
	return &Tracker{
		snap: Snapshot{
			RunState:  control.StateStopped,
			Phase:     control.PhaseIdle,
			StartTime: startTime,
			Config:    cfg,
		},
		cfg: store,
	}
}

// SetRunState records a run-state transition.
func (t *Tracker) SetRunState(s control.State) {
	t.mu.Lock()
	t.snap.RunState = s
	if s != control.StateRunning {
		t.snap.Phase = control.PhaseIdle
	}
	t.mu.Unlock()
}

// CycleEvent records a phase or cycle boundary from the sequencer.
func (t *Tracker) CycleEvent(e control.CycleEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Kind {
	case control.KindStart:
		t.snap.Phase = e.Phase
	case control.KindAborted:
		t.snap.Counts.Aborts++
		t.snap.Phase = control.PhaseIdle
	case control.KindDone:
		switch e.Phase {
		case control.PhasePush:
			t.snap.Counts.Pushes++
		case control.PhaseFill:
			t.snap.Counts.Fills++
		case control.PhaseCap:
			t.snap.Counts.Caps++
		case control.PhaseCycle:
			t.snap.Counts.Cycles++
			t.snap.Phase = control.PhaseIdle
		}
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	if t.cfg != nil {
		s.Settings = t.cfg.Get()
	}
	return s
}
