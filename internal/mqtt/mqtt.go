// Package mqtt publishes line telemetry with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/bottle-filler/internal/control"
)

// Topic is the MQTT topic for line cycle events.
const Topic = "factory/filler/line/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "factory/filler/line/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a line event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event LineEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// EventType classifies a line event.
type EventType string

const (
	EventPhaseStart   EventType = "PHASE_START"
	EventPhaseDone    EventType = "PHASE_DONE"
	EventPhaseAborted EventType = "PHASE_ABORTED"
	EventCycleDone    EventType = "CYCLE_DONE"
	EventRunState     EventType = "RUN_STATE"
)

// LineEvent represents one line cycle or run-state event.
type LineEvent struct {
	Timestamp time.Time
	Type      EventType
	Phase     control.Phase // empty for run-state events
	RunState  control.State
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Filler FillerPayload `json:"filler"`
}

// FillerPayload contains the line event details.
type FillerPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Phase     string `json:"phase,omitempty"`
	RunState  string `json:"run_state"`
}

// FormatPayload creates the JSON payload for a line event.
func FormatPayload(event LineEvent) ([]byte, error) {
	payload := Payload{
		Filler: FillerPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Phase:     string(event.Phase),
			RunState:  string(event.RunState),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
