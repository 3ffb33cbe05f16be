package control

import (
	"log"
	"time"

	"github.com/sweeney/bottle-filler/internal/hardware"
	"github.com/sweeney/bottle-filler/internal/settings"
)

const (
	// PollQuantum is the slice every blocking wait is cut into. No
	// operation blocks longer than this without an abort check.
	PollQuantum = 10 * time.Millisecond

	// PresencePollInterval paces the wait-for-presence loops.
	PresencePollInterval = 50 * time.Millisecond
)

// Phase names a logical step of the cycle.
type Phase string

const (
	PhaseAwaitReady Phase = "await_ready"
	PhasePush       Phase = "push"
	PhaseFill       Phase = "fill"
	PhaseCap        Phase = "cap"
	PhaseCycle      Phase = "cycle"
	PhaseIdle       Phase = "idle"
)

// Kind classifies a cycle event.
type Kind string

const (
	KindStart   Kind = "start"
	KindDone    Kind = "done"
	KindAborted Kind = "aborted"
)

// CycleEvent reports a phase or cycle boundary.
type CycleEvent struct {
	Phase Phase
	Kind  Kind
}

// Observer receives cycle events. Implementations must not block; they are
// called from the control loop.
type Observer interface {
	CycleEvent(e CycleEvent)
}

// Sequencer composes presence waits and timed actuator phases into the line
// cycle: await-ready, push x3, fill, push, fill. Every blocking step routes
// through Wait, so a run-state change unwinds the cycle within one polling
// quantum with all outputs already safe. An aborted cycle never resumes
// mid-phase; the next Running entry restarts at await-ready.
type Sequencer struct {
	det *Detector
	out hardware.Outputs
	cfg *settings.Store
	run *Controller

	// Sleep is the real or simulated sleep function. Set once during
	// wiring; tests substitute a virtual clock.
	Sleep func(time.Duration)

	// Observer, if set, receives phase and cycle events.
	Observer Observer
}

// NewSequencer creates a Sequencer using real time.
func NewSequencer(det *Detector, out hardware.Outputs, cfg *settings.Store, run *Controller) *Sequencer {
	return &Sequencer{
		det:   det,
		out:   out,
		cfg:   cfg,
		run:   run,
		Sleep: time.Sleep,
	}
}

// Wait sleeps for d in PollQuantum slices, checking the run state before
// each slice. Returns true on normal completion. If the process is no
// longer Running it forces every output off and returns false immediately;
// this is the sole enforcement point for "leaving Running de-energizes", so
// timed phases must never sleep around it.
func (s *Sequencer) Wait(d time.Duration) bool {
	for remaining := d; remaining > 0; remaining -= PollQuantum {
		if !s.run.IsRunning() {
			s.out.AllOff()
			return false
		}
		step := PollQuantum
		if remaining < step {
			step = remaining
		}
		s.Sleep(step)
	}
	return true
}

// RunCycle executes one full line cycle. Returns false if the cycle was
// aborted by a run-state change.
func (s *Sequencer) RunCycle() bool {
	s.emit(PhaseAwaitReady, KindStart)
	if !s.awaitReady() {
		s.emit(PhaseAwaitReady, KindAborted)
		return false
	}
	s.emit(PhaseAwaitReady, KindDone)

	for i := 0; i < 3; i++ {
		if !s.pushBottle() {
			return false
		}
	}
	if !s.fillBottle() {
		return false
	}
	if !s.pushBottle() {
		return false
	}
	if !s.fillBottle() {
		return false
	}

	log.Printf("cycle complete")
	s.emit(PhaseCycle, KindDone)
	return true
}

// awaitReady polls both presence detectors until bottle and cap are present.
// Both are invoked every iteration so both actuator policies stay asserted
// while the line is parked.
func (s *Sequencer) awaitReady() bool {
	for {
		if !s.run.IsRunning() {
			s.out.AllOff()
			return false
		}
		bottle := s.det.BottleLoaded()
		capReady := s.det.CapLoaded()
		if bottle && capReady {
			return true
		}
		if !s.Wait(PresencePollInterval) {
			return false
		}
	}
}

// pushBottle runs one push phase, then hands off to capping (which decides
// internally whether it is enabled).
func (s *Sequencer) pushBottle() bool {
	s.emit(PhasePush, KindStart)
	if !s.pushSteps() {
		log.Printf("push aborted")
		s.emit(PhasePush, KindAborted)
		return false
	}
	s.emit(PhasePush, KindDone)
	return s.capBottle()
}

func (s *Sequencer) pushSteps() bool {
	if !s.waitForBottle() {
		return false
	}

	// Keep the conveyor running briefly to seat the bottle against the
	// push register, then stop it for the stroke.
	log.Printf("push: positioning bottle for %v", s.cfg.PositioningDelay())
	s.out.Set(hardware.ActuatorConveyor, true)
	if !s.Wait(s.cfg.PositioningDelay()) {
		return false
	}
	s.out.Set(hardware.ActuatorConveyor, false)

	log.Printf("push: energizing for %v", s.cfg.PushTime())
	if !s.energize(hardware.ActuatorPush, s.cfg.PushTime()) {
		return false
	}

	return s.Wait(s.cfg.PostPushDelay())
}

// fillBottle runs one fill phase, or nothing when filling is disabled.
func (s *Sequencer) fillBottle() bool {
	if !s.cfg.FillingEnabled() {
		return true
	}
	s.emit(PhaseFill, KindStart)
	if !s.fillSteps() {
		log.Printf("fill aborted")
		s.emit(PhaseFill, KindAborted)
		return false
	}
	s.emit(PhaseFill, KindDone)
	return true
}

func (s *Sequencer) fillSteps() bool {
	if !s.waitForBottle() {
		return false
	}
	log.Printf("fill: energizing for %v", s.cfg.FillTime())
	if !s.energize(hardware.ActuatorFill, s.cfg.FillTime()) {
		return false
	}
	return s.Wait(s.cfg.PostFillDelay())
}

// capBottle runs one cap phase, or nothing when capping is disabled.
func (s *Sequencer) capBottle() bool {
	if !s.cfg.CappingEnabled() {
		return true
	}
	s.emit(PhaseCap, KindStart)
	if !s.capSteps() {
		log.Printf("cap aborted")
		s.emit(PhaseCap, KindAborted)
		return false
	}
	s.emit(PhaseCap, KindDone)
	return true
}

func (s *Sequencer) capSteps() bool {
	if !s.waitForCap() {
		return false
	}
	log.Printf("cap: energizing for %v", s.cfg.CapTime())
	return s.energize(hardware.ActuatorCap, s.cfg.CapTime())
}

// waitForBottle blocks until a bottle is present, dual-polling the cap
// detector so the hopper feeder stays driven while the line waits.
func (s *Sequencer) waitForBottle() bool {
	for {
		if !s.run.IsRunning() {
			s.out.AllOff()
			return false
		}
		if s.det.BottleLoaded() {
			return true
		}
		s.det.CapLoaded()
		if !s.Wait(PresencePollInterval) {
			return false
		}
	}
}

// waitForCap blocks until a cap is staged, dual-polling the bottle detector
// so the conveyor policy stays asserted meanwhile.
func (s *Sequencer) waitForCap() bool {
	for {
		if !s.run.IsRunning() {
			s.out.AllOff()
			return false
		}
		if s.det.CapLoaded() {
			return true
		}
		s.det.BottleLoaded()
		if !s.Wait(PresencePollInterval) {
			return false
		}
	}
}

// energize drives the actuator for d. On abort the Wait has already forced
// every output off, so there is no separate de-energize on that path.
func (s *Sequencer) energize(a hardware.Actuator, d time.Duration) bool {
	s.out.Set(a, true)
	if !s.Wait(d) {
		return false
	}
	s.out.Set(a, false)
	return true
}

func (s *Sequencer) emit(p Phase, k Kind) {
	if s.Observer != nil {
		s.Observer.CycleEvent(CycleEvent{Phase: p, Kind: k})
	}
}
