// Package control is the filling line's sequencing core: the run-state
// machine, the presence decisions with their actuator side effects, the
// abortable wait primitive, and the phase sequencer that composes them into
// the push/fill/cap cycle.
//
// There is exactly one control flow executing phases at any instant; the run
// state is the only value mutated from outside it (the operator surface).
package control

import (
	"log"
	"sync"

	"github.com/sweeney/bottle-filler/internal/hardware"
)

// State is the process run state.
type State string

const (
	StateStopped State = "stopped"
	StatePaused  State = "paused"
	StateRunning State = "running"
)

// Controller is the three-state run/pause/stop machine. Whenever the state
// leaves Running, every actuator is driven to its de-energized value.
type Controller struct {
	mu    sync.Mutex
	state State
	out   hardware.Outputs

	// OnChange, if set, is called after every actual transition, outside
	// the lock. Set once during wiring, before any transition.
	OnChange func(old, new State)
}

// NewController creates a Controller in the Stopped state.
func NewController(out hardware.Outputs) *Controller {
	return &Controller{state: StateStopped, out: out}
}

// Set transitions to the given state. Setting the current state is a no-op.
// Leaving Running forces all outputs off before the transition is observable.
func (c *Controller) Set(s State) {
	c.mu.Lock()
	old := c.state
	if old == s {
		c.mu.Unlock()
		return
	}
	if old == StateRunning {
		c.out.AllOff()
	}
	c.state = s
	c.mu.Unlock()

	log.Printf("run state: %s -> %s", old, s)
	if c.OnChange != nil {
		c.OnChange(old, s)
	}
}

// Run transitions to Running.
func (c *Controller) Run() { c.Set(StateRunning) }

// Pause transitions to Paused.
func (c *Controller) Pause() { c.Set(StatePaused) }

// Stop transitions to Stopped.
func (c *Controller) Stop() { c.Set(StateStopped) }

// State returns the current run state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsRunning reports whether the sequencer may proceed past abort checkpoints.
func (c *Controller) IsRunning() bool {
	return c.State() == StateRunning
}
