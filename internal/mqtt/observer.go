package mqtt

import (
	"log"
	"time"

	"github.com/sweeney/bottle-filler/internal/control"
)

// CycleObserver bridges sequencer cycle events onto the line topic.
type CycleObserver struct {
	Publisher Publisher
	RunState  func() control.State
	Now       func() time.Time
}

// NewCycleObserver creates a CycleObserver reading run state from ctrl.
func NewCycleObserver(p Publisher, ctrl *control.Controller) *CycleObserver {
	return &CycleObserver{
		Publisher: p,
		RunState:  ctrl.State,
		Now:       time.Now,
	}
}

// CycleEvent publishes the cycle event. Publish failures are logged, never
// propagated; telemetry must not stall the line.
func (o *CycleObserver) CycleEvent(e control.CycleEvent) {
	event := LineEvent{
		Timestamp: o.Now(),
		Type:      eventTypeFor(e),
		Phase:     e.Phase,
		RunState:  o.RunState(),
	}
	if err := o.Publisher.Publish(event); err != nil {
		log.Printf("mqtt: publish cycle event: %v", err)
	}
}

// RunStateChanged publishes a run-state transition.
func (o *CycleObserver) RunStateChanged(s control.State) {
	event := LineEvent{
		Timestamp: o.Now(),
		Type:      EventRunState,
		RunState:  s,
	}
	if err := o.Publisher.Publish(event); err != nil {
		log.Printf("mqtt: publish run state: %v", err)
	}
}

func eventTypeFor(e control.CycleEvent) EventType {
	if e.Phase == control.PhaseCycle {
		return EventCycleDone
	}
	switch e.Kind {
	case control.KindStart:
		return EventPhaseStart
	case control.KindAborted:
		return EventPhaseAborted
	default:
		return EventPhaseDone
	}
}
