package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/bottle-filler/internal/settings"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string            `json:"event,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	RunState      string            `json:"run_state"`
	Phase         string            `json:"phase"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StartTime     string            `json:"start_time"`
	Timestamp     string            `json:"timestamp"`
	MQTT          MQTTStatus        `json:"mqtt"`
	Counts        CountsJSON        `json:"counts"`
	Settings      settings.Settings `json:"settings"`
	Config        ConfigJSON        `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of phase counts.
type CountsJSON struct {
	Pushes int `json:"pushes"`
	Fills  int `json:"fills"`
	Caps   int `json:"caps"`
	Cycles int `json:"cycles"`
	Aborts int `json:"aborts"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	QuantumMs    int64  `json:"quantum_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
	SettingsPath string `json:"settings_path,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		RunState:      string(snap.RunState),
		Phase:         string(snap.Phase),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Pushes: snap.Counts.Pushes,
			Fills:  snap.Counts.Fills,
			Caps:   snap.Counts.Caps,
			Cycles: snap.Counts.Cycles,
			Aborts: snap.Counts.Aborts,
		},
		Settings: snap.Settings,
		Config: ConfigJSON{
			QuantumMs:    snap.Config.QuantumMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			SettingsPath: snap.Config.SettingsPath,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
