package main

import (
	"encoding/json"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/bottle-filler/internal/control"
	"github.com/sweeney/bottle-filler/internal/filter"
	"github.com/sweeney/bottle-filler/internal/hardware"
	"github.com/sweeney/bottle-filler/internal/mqtt"
	"github.com/sweeney/bottle-filler/internal/settings"
	"github.com/sweeney/bottle-filler/internal/status"
)

// fakeClock makes runLoop run synchronously on the test goroutine: sleeps
// advance virtual time and fire scheduled actions, so no real time passes
// and no goroutines race on the fakes.
type fakeClock struct {
	base    time.Time
	elapsed time.Duration
	actions []clockAction
}

type clockAction struct {
	at   time.Duration
	fn   func()
	done bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{base: time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) at() time.Time { return c.base.Add(c.elapsed) }

func (c *fakeClock) schedule(at time.Duration, fn func()) {
	c.actions = append(c.actions, clockAction{at: at, fn: fn})
}

func (c *fakeClock) sleep(d time.Duration) {
	target := c.elapsed + d
	for {
		next := -1
		for i, a := range c.actions {
			if a.done || a.at > target {
				continue
			}
			if next == -1 || a.at < c.actions[next].at {
				next = i
			}
		}
		if next == -1 {
			break
		}
		a := &c.actions[next]
		if a.at > c.elapsed {
			c.elapsed = a.at
		}
		a.done = true
		a.fn()
	}
	c.elapsed = target
}

// loopRig wires the control loop's collaborators out of fakes, the same way
// run() wires the real ones.
type loopRig struct {
	clock   *fakeClock
	sampler *hardware.FakeSampler
	out     *hardware.FakeOutputs
	store   *settings.Store
	ctrl    *control.Controller
	seq     *control.Sequencer
	tracker *status.Tracker
	pub     *mqtt.FakePublisher
	quit    chan struct{}
}

func newLoopRig(s settings.Settings) *loopRig {
	clock := newFakeClock()
	sampler := hardware.FixedSampler(map[hardware.Channel]float64{
		hardware.ChannelBottle:    100,
		hardware.ChannelCapLoaded: 100,
		hardware.ChannelCapFull:   100,
	})
	out := hardware.NewFakeOutputs()
	store := settings.NewStore(s)
	sensors := filter.NewRegistry(sampler, store, maxSensorChannels)

	ctrl := control.NewController(out)
	tracker := status.NewTracker(clock.base, status.Config{QuantumMs: 10, Broker: "tcp://broker:1883"}, store)
	pub := mqtt.NewFakePublisher()
	obs := mqtt.NewCycleObserver(pub, ctrl)
	obs.Now = clock.at
	ctrl.OnChange = func(old, new control.State) {
		tracker.SetRunState(new)
		obs.RunStateChanged(new)
	}

	det := control.NewDetector(sensors, out, store)
	seq := control.NewSequencer(det, out, store, ctrl)
	seq.Sleep = clock.sleep
	seq.Observer = multiObserver{tracker, obs}

	return &loopRig{
		clock:   clock,
		sampler: sampler,
		out:     out,
		store:   store,
		ctrl:    ctrl,
		seq:     seq,
		tracker: tracker,
		pub:     pub,
		quit:    make(chan struct{}),
	}
}

func (r *loopRig) run(heartbeat time.Duration) error {
	return runLoop(r.ctrl, r.seq, r.out, r.tracker, r.pub, r.pub, heartbeat, r.clock.at, r.clock.sleep, r.quit)
}

func loopSettings() settings.Settings {
	s := settings.Default()
	s.RollingWindow = 1
	return s
}

func TestRunLoopStoppedIdles(t *testing.T) {
	r := newLoopRig(loopSettings())
	r.clock.schedule(25*time.Millisecond, func() { close(r.quit) })

	if err := r.run(0); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if len(r.out.History) != 0 {
		t.Errorf("stopped loop must not touch outputs, got %d writes", len(r.out.History))
	}
	if n := r.tracker.Snapshot().Counts.Cycles; n != 0 {
		t.Errorf("stopped loop must not run cycles, got %d", n)
	}
}

func TestRunLoopRunsCyclesUntilStopped(t *testing.T) {
	r := newLoopRig(loopSettings())

	// One full cycle completes at 94s; the stop lands mid way through the
	// second cycle's first push phase.
	r.clock.schedule(100*time.Second, func() {
		r.ctrl.Stop()
		close(r.quit)
	})
	r.ctrl.Run()

	if err := r.run(0); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	snap := r.tracker.Snapshot()
	if snap.Counts.Cycles != 1 {
		t.Errorf("expected 1 completed cycle, got %d", snap.Counts.Cycles)
	}
	if snap.Counts.Aborts != 1 {
		t.Errorf("expected the second cycle to abort, got %d aborts", snap.Counts.Aborts)
	}
	if snap.Counts.Pushes != 4 || snap.Counts.Fills != 2 {
		t.Errorf("expected 4 pushes and 2 fills from the completed cycle, got %+v", snap.Counts)
	}
	if snap.RunState != control.StateStopped {
		t.Errorf("expected stopped, got %s", snap.RunState)
	}
	if r.out.AnyEnergized() {
		t.Errorf("outputs must be safe after stop: %+v", r.out.States)
	}

	cycleDone := 0
	runStates := 0
	for _, e := range r.pub.Events {
		switch e.Type {
		case mqtt.EventCycleDone:
			cycleDone++
		case mqtt.EventRunState:
			runStates++
		}
	}
	if cycleDone != 1 {
		t.Errorf("expected 1 CYCLE_DONE event, got %d", cycleDone)
	}
	if runStates != 2 {
		t.Errorf("expected run-state events for run and stop, got %d", runStates)
	}
}

func TestRunLoopPausedReassertsOutputs(t *testing.T) {
	r := newLoopRig(loopSettings())
	r.ctrl.Pause()
	r.clock.schedule(55*time.Millisecond, func() { close(r.quit) })

	if err := r.run(0); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if r.out.AllOffCalls < 3 {
		t.Errorf("paused loop should re-assert safe outputs every quantum, got %d AllOff calls", r.out.AllOffCalls)
	}
	if r.out.AnyEnergized() {
		t.Errorf("outputs must stay safe while paused: %+v", r.out.States)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	r := newLoopRig(loopSettings())
	r.clock.schedule(175*time.Millisecond, func() { close(r.quit) })

	if err := r.run(50 * time.Millisecond); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if len(r.pub.SystemEvents) != 3 {
		t.Fatalf("expected 3 heartbeats in 175ms at 50ms intervals, got %d", len(r.pub.SystemEvents))
	}
	for _, e := range r.pub.SystemEvents {
		if e.Event != "HEARTBEAT" {
			t.Errorf("unexpected system event %q", e.Event)
		}
	}

	// Heartbeats carry a full status snapshot.
	var parsed status.StatusJSON
	if err := json.Unmarshal(r.pub.SystemEvents[0].RawPayload, &parsed); err != nil {
		t.Fatalf("heartbeat payload invalid: %v", err)
	}
	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("expected HEARTBEAT event in payload, got %q", parsed.Status.Event)
	}
	if parsed.Status.RunState != "stopped" {
		t.Errorf("unexpected run state in heartbeat: %q", parsed.Status.RunState)
	}
}

func TestRunLoopReportsMQTTConnection(t *testing.T) {
	r := newLoopRig(loopSettings())
	r.pub.Connected = true
	r.clock.schedule(15*time.Millisecond, func() { close(r.quit) })

	if err := r.run(0); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if !r.tracker.Snapshot().MQTTConnected {
		t.Error("loop should report broker connectivity to the tracker")
	}
}

func TestRunLoopHeartbeatSurvivesPublishError(t *testing.T) {
	r := newLoopRig(loopSettings())
	r.pub.PublishSystemError = errors.New("broker down")
	r.clock.schedule(75*time.Millisecond, func() { close(r.quit) })

	if err := r.run(20 * time.Millisecond); err != nil {
		t.Fatalf("runLoop must not fail on publish errors: %v", err)
	}
}

type recordingObserver struct {
	events []control.CycleEvent
}

func (r *recordingObserver) CycleEvent(e control.CycleEvent) {
	r.events = append(r.events, e)
}

func TestMultiObserverFansOut(t *testing.T) {
	a := &recordingObserver{}
	b := &recordingObserver{}
	m := multiObserver{a, b}

	e := control.CycleEvent{Phase: control.PhasePush, Kind: control.KindStart}
	m.CycleEvent(e)

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both observers notified, got %d and %d", len(a.events), len(b.events))
	}
	if a.events[0] != e || b.events[0] != e {
		t.Errorf("observers should receive the same event")
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("SIGINT: got %q", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("SIGTERM: got %q", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("SIGHUP: got %q", got)
	}
}
