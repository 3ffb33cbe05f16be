package control

import (
	"testing"
	"time"

	"github.com/sweeney/bottle-filler/internal/filter"
	"github.com/sweeney/bottle-filler/internal/hardware"
	"github.com/sweeney/bottle-filler/internal/settings"
)

// virtualClock replaces the sequencer's sleep with instant virtual time and
// fires scheduled actions (run-state flips, sensor changes) at exact points
// in the timeline.
type virtualClock struct {
	now     time.Duration
	actions []clockAction
}

type clockAction struct {
	at   time.Duration
	fn   func()
	done bool
}

func (c *virtualClock) at(t time.Duration, fn func()) {
	c.actions = append(c.actions, clockAction{at: t, fn: fn})
}

func (c *virtualClock) sleep(d time.Duration) {
	c.now += d
	for i := range c.actions {
		a := &c.actions[i]
		if !a.done && c.now >= a.at {
			a.done = true
			a.fn()
		}
	}
}

// eventRecorder collects cycle events for assertions.
type eventRecorder struct {
	events []CycleEvent
}

func (r *eventRecorder) CycleEvent(e CycleEvent) {
	r.events = append(r.events, e)
}

func (r *eventRecorder) has(p Phase, k Kind) bool {
	for _, e := range r.events {
		if e.Phase == p && e.Kind == k {
			return true
		}
	}
	return false
}

type rig struct {
	sampler *hardware.FakeSampler
	out     *hardware.FakeOutputs
	cfg     *settings.Store
	ctrl    *Controller
	seq     *Sequencer
	clock   *virtualClock
	events  *eventRecorder
}

func newRig(s settings.Settings, distances map[hardware.Channel]float64) *rig {
	sampler := hardware.FixedSampler(distances)
	out := hardware.NewFakeOutputs()
	cfg := settings.NewStore(s)
	reg := filter.NewRegistry(sampler, cfg, 10)
	ctrl := NewController(out)
	seq := NewSequencer(NewDetector(reg, out, cfg), out, cfg, ctrl)

	clock := &virtualClock{}
	seq.Sleep = clock.sleep
	events := &eventRecorder{}
	seq.Observer = events

	return &rig{sampler: sampler, out: out, cfg: cfg, ctrl: ctrl, seq: seq, clock: clock, events: events}
}

// cycleSettings returns the stock line configuration with a window of 1 so a
// constant scripted distance is visible from the first sample.
func cycleSettings() settings.Settings {
	s := settings.Default()
	s.RollingWindow = 1
	return s
}

func TestWaitCompletes(t *testing.T) {
	r := newRig(cycleSettings(), nil)
	r.ctrl.Run()

	if !r.seq.Wait(235 * time.Millisecond) {
		t.Fatal("expected wait to complete")
	}
	if r.clock.now != 235*time.Millisecond {
		t.Errorf("expected 235ms slept, got %v", r.clock.now)
	}
}

func TestWaitZeroDuration(t *testing.T) {
	r := newRig(cycleSettings(), nil)
	r.ctrl.Run()
	if !r.seq.Wait(0) {
		t.Error("zero wait should complete")
	}
	if r.clock.now != 0 {
		t.Errorf("zero wait should not sleep, slept %v", r.clock.now)
	}
}

func TestWaitAbortsWhenNotRunning(t *testing.T) {
	r := newRig(cycleSettings(), nil)
	// Controller is Stopped.
	r.out.Set(hardware.ActuatorFill, true)

	if r.seq.Wait(5 * time.Second) {
		t.Fatal("expected abort while not running")
	}
	if r.clock.now != 0 {
		t.Errorf("abort at entry must not sleep, slept %v", r.clock.now)
	}
	if r.out.AnyEnergized() {
		t.Error("abort must force all outputs off")
	}
}

func TestWaitAbortsMidWait(t *testing.T) {
	r := newRig(cycleSettings(), nil)
	r.ctrl.Run()
	r.clock.at(10*time.Millisecond, r.ctrl.Pause)

	if r.seq.Wait(2 * time.Second) {
		t.Fatal("expected abort")
	}
	// The pause lands during the first quantum and is seen at the next
	// slice boundary.
	if r.clock.now > 10*time.Millisecond+PollQuantum {
		t.Errorf("abort must be visible within one quantum, waited %v", r.clock.now)
	}
	if r.out.AnyEnergized() {
		t.Error("abort must force all outputs off")
	}
}

func TestFullCycleCappingDisabled(t *testing.T) {
	// Settings per the reference scenario: bottle threshold 200, push
	// 3000ms, post-push 3000ms, filling enabled, capping disabled. The
	// bottle sensor reads 150 throughout.
	r := newRig(cycleSettings(), map[hardware.Channel]float64{
		hardware.ChannelBottle: 150,
	})
	r.ctrl.Run()

	if !r.seq.RunCycle() {
		t.Fatal("expected cycle to complete")
	}

	// await-ready is immediate; four pushes at 1000+3000+3000 each, two
	// fills at 32000+1000 each.
	want := 4*7*time.Second + 2*33*time.Second
	if r.clock.now != want {
		t.Errorf("expected cycle duration %v, got %v", want, r.clock.now)
	}

	var pushStarts, fillStarts, capStarts int
	for _, e := range r.events.events {
		if e.Kind != KindStart {
			continue
		}
		switch e.Phase {
		case PhasePush:
			pushStarts++
		case PhaseFill:
			fillStarts++
		case PhaseCap:
			capStarts++
		}
	}
	if pushStarts != 4 {
		t.Errorf("expected 4 push phases, got %d", pushStarts)
	}
	if fillStarts != 2 {
		t.Errorf("expected 2 fill phases, got %d", fillStarts)
	}
	if capStarts != 0 {
		t.Errorf("capping disabled: expected 0 cap phases, got %d", capStarts)
	}
	if !r.events.has(PhaseCycle, KindDone) {
		t.Error("expected a cycle-done event")
	}

	// Each push energized and de-energized the push actuator.
	var pushOn, pushOff int
	for _, w := range r.out.History {
		if w.Actuator == hardware.ActuatorPush {
			if w.Energized {
				pushOn++
			} else {
				pushOff++
			}
		}
	}
	if pushOn != 4 || pushOff != 4 {
		t.Errorf("expected 4 push energize/de-energize pairs, got %d/%d", pushOn, pushOff)
	}

	if r.out.AnyEnergized() {
		t.Error("no actuator should remain energized after the cycle")
	}
}

func TestConveyorStoppedBeforePushStroke(t *testing.T) {
	r := newRig(cycleSettings(), map[hardware.Channel]float64{
		hardware.ChannelBottle: 150,
	})
	r.ctrl.Run()
	r.seq.RunCycle()

	// In the write history, every push energize must be preceded more
	// recently by conveyor-off than by conveyor-on.
	conveyorOn := false
	for i, w := range r.out.History {
		switch w.Actuator {
		case hardware.ActuatorConveyor:
			conveyorOn = w.Energized
		case hardware.ActuatorPush:
			if w.Energized && conveyorOn {
				t.Fatalf("write %d: push energized while conveyor running", i)
			}
		}
	}
}

func TestCycleSkipsFillWhenDisabled(t *testing.T) {
	s := cycleSettings()
	s.FillingEnabled = false
	r := newRig(s, map[hardware.Channel]float64{
		hardware.ChannelBottle: 150,
	})
	r.ctrl.Run()

	if !r.seq.RunCycle() {
		t.Fatal("expected cycle to complete")
	}
	if r.clock.now != 4*7*time.Second {
		t.Errorf("expected 4 pushes only (28s), got %v", r.clock.now)
	}
	if r.events.has(PhaseFill, KindStart) {
		t.Error("filling disabled: no fill phase expected")
	}
}

func TestCycleRunsCapPhase(t *testing.T) {
	s := cycleSettings()
	s.CappingEnabled = true
	r := newRig(s, map[hardware.Channel]float64{
		hardware.ChannelBottle:    150,
		hardware.ChannelCapLoaded: 100,
		hardware.ChannelCapFull:   100,
	})
	r.ctrl.Run()

	if !r.seq.RunCycle() {
		t.Fatal("expected cycle to complete")
	}

	// Every push hands off to a cap phase: 4 of them, 2s each.
	var capStarts int
	for _, e := range r.events.events {
		if e.Phase == PhaseCap && e.Kind == KindStart {
			capStarts++
		}
	}
	if capStarts != 4 {
		t.Errorf("expected 4 cap phases, got %d", capStarts)
	}

	want := 4*(7+2)*time.Second + 2*33*time.Second
	if r.clock.now != want {
		t.Errorf("expected cycle duration %v, got %v", want, r.clock.now)
	}
}

func TestAwaitReadyBlocksUntilPresence(t *testing.T) {
	r := newRig(cycleSettings(), map[hardware.Channel]float64{
		hardware.ChannelBottle: 500, // absent
	})
	r.ctrl.Run()

	// Bottle arrives 200ms in.
	r.clock.at(200*time.Millisecond, func() {
		r.sampler.SetDistance(hardware.ChannelBottle, 150)
	})
	// Stop the test run shortly after the first push completes.
	r.clock.at(8*time.Second, r.ctrl.Stop)

	r.seq.RunCycle()

	if !r.events.has(PhaseAwaitReady, KindDone) {
		t.Fatal("await-ready should have completed once the bottle arrived")
	}
	if !r.events.has(PhasePush, KindStart) {
		t.Error("a push should have started after await-ready")
	}
	// While waiting, the conveyor policy ran the belt.
	sawConveyorOn := false
	for _, w := range r.out.History {
		if w.Actuator == hardware.ActuatorConveyor && w.Energized {
			sawConveyorOn = true
			break
		}
	}
	if !sawConveyorOn {
		t.Error("conveyor should have run while awaiting the bottle")
	}
}

func TestAbortDuringAwaitReady(t *testing.T) {
	r := newRig(cycleSettings(), map[hardware.Channel]float64{
		hardware.ChannelBottle: 500,
	})
	r.ctrl.Run()
	r.clock.at(120*time.Millisecond, r.ctrl.Pause)

	if r.seq.RunCycle() {
		t.Fatal("expected abort")
	}
	if !r.events.has(PhaseAwaitReady, KindAborted) {
		t.Error("expected await-ready abort event")
	}
	if r.events.has(PhasePush, KindStart) {
		t.Error("no push may start after an abort")
	}
	if r.out.AnyEnergized() {
		t.Error("outputs must be safe after abort")
	}
}

func TestAbortDuringPushEnergize(t *testing.T) {
	r := newRig(cycleSettings(), map[hardware.Channel]float64{
		hardware.ChannelBottle: 150,
	})
	r.ctrl.Run()

	// Positioning takes 1000ms; pause 500ms into the push stroke.
	r.clock.at(1500*time.Millisecond, r.ctrl.Pause)

	if r.seq.RunCycle() {
		t.Fatal("expected abort")
	}
	if r.out.States[hardware.ActuatorPush] {
		t.Error("push actuator must be de-energized on abort")
	}
	if r.out.AnyEnergized() {
		t.Error("outputs must be safe after abort")
	}
	if !r.events.has(PhasePush, KindAborted) {
		t.Error("expected push abort event")
	}
	if r.events.has(PhaseFill, KindStart) {
		t.Error("abort must not proceed to the fill phase")
	}
	if r.clock.now > 1500*time.Millisecond+PollQuantum {
		t.Errorf("abort must return within one quantum, waited %v", r.clock.now)
	}
}

func TestAbortDuringCapEnergize(t *testing.T) {
	s := cycleSettings()
	s.CappingEnabled = true
	r := newRig(s, map[hardware.Channel]float64{
		hardware.ChannelBottle:    150,
		hardware.ChannelCapLoaded: 100,
		hardware.ChannelCapFull:   100,
	})
	r.ctrl.Run()

	// First push finishes at 7000ms, then the cap phase energizes for
	// 2000ms. Pause 10ms into that energize.
	pushDone := 7 * time.Second
	r.clock.at(pushDone+10*time.Millisecond, r.ctrl.Pause)

	if r.seq.RunCycle() {
		t.Fatal("expected abort")
	}
	if r.out.States[hardware.ActuatorCap] {
		t.Error("cap actuator must be de-energized on abort")
	}
	// The call returns within one quantum of the pause rather than
	// sitting out the remaining ~1990ms.
	if r.clock.now > pushDone+10*time.Millisecond+PollQuantum {
		t.Errorf("expected return within one quantum of the pause, waited %v", r.clock.now)
	}
	if !r.events.has(PhaseCap, KindAborted) {
		t.Error("expected cap abort event")
	}
}

func TestAbortedCycleRestartsAtAwaitReady(t *testing.T) {
	r := newRig(cycleSettings(), map[hardware.Channel]float64{
		hardware.ChannelBottle: 150,
	})
	r.ctrl.Run()
	r.clock.at(1500*time.Millisecond, r.ctrl.Pause)

	if r.seq.RunCycle() {
		t.Fatal("expected abort")
	}

	// Resume: the next cycle starts over at await-ready, not mid-push.
	r.events.events = nil
	r.ctrl.Run()
	r.clock.at(r.clock.now+2*time.Second, r.ctrl.Stop)
	r.seq.RunCycle()

	if len(r.events.events) == 0 || r.events.events[0] != (CycleEvent{PhaseAwaitReady, KindStart}) {
		t.Errorf("resumed cycle must restart at await-ready, first event: %+v", r.events.events)
	}
}

func TestDualPollKeepsFeederAssertedWhileWaitingForBottle(t *testing.T) {
	s := cycleSettings()
	s.CappingEnabled = true
	r := newRig(s, map[hardware.Channel]float64{
		hardware.ChannelBottle:    500, // absent: the wait loop parks here
		hardware.ChannelCapLoaded: 100,
		hardware.ChannelCapFull:   500, // hopper not full: feeder should run
	})
	r.ctrl.Run()
	r.clock.at(300*time.Millisecond, r.ctrl.Stop)

	if r.seq.waitForBottle() {
		t.Fatal("expected the wait to abort at the stop")
	}

	// While parked waiting for the bottle, the dual-poll kept driving the
	// hopper feeder.
	feederWrites := 0
	for _, w := range r.out.History {
		if w.Actuator == hardware.ActuatorCapFeeder && w.Energized {
			feederWrites++
		}
	}
	if feederWrites < 2 {
		t.Errorf("expected repeated feeder writes during the bottle wait, got %d", feederWrites)
	}
}
