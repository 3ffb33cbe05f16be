package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/bottle-filler/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"enabled": func(b bool) string {
		if b {
			return "enabled"
		}
		return "disabled"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Bottle Filler</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.paused { color: orange; font-weight: bold; }
.stopped { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
button { font-family: monospace; padding: 6px 16px; margin-right: 8px; }
</style>
</head>
<body>
<h1>Bottle Filler</h1>

<h2>Line</h2>
<table>
<tr><th>Run state</th><td id="run-state" class="{{.RunState}}">{{.RunState}}</td></tr>
<tr><th>Phase</th><td>{{.Phase}}</td></tr>
<tr><th>Cycles</th><td>{{.Counts.Cycles}}</td></tr>
<tr><th>Pushes / Fills / Caps</th><td>{{.Counts.Pushes}} / {{.Counts.Fills}} / {{.Counts.Caps}}</td></tr>
<tr><th>Aborts</th><td>{{.Counts.Aborts}}</td></tr>
</table>

<p>
<button onclick="command('run')">Run</button>
<button onclick="command('pause')">Pause</button>
<button onclick="command('stop')">Stop</button>
</p>

<h2>Settings</h2>
<table>
<tr><th>Filling</th><td>{{enabled .Settings.FillingEnabled}}</td></tr>
<tr><th>Capping</th><td>{{enabled .Settings.CappingEnabled}}</td></tr>
<tr><th>Push / Fill / Cap</th><td>{{.Settings.PushMs}}ms / {{.Settings.FillMs}}ms / {{.Settings.CapMs}}ms</td></tr>
<tr><th>Post-push / Post-fill</th><td>{{.Settings.PostPushMs}}ms / {{.Settings.PostFillMs}}ms</td></tr>
<tr><th>Positioning</th><td>{{.Settings.PositioningMs}}ms</td></tr>
<tr><th>Thresholds (bottle/cap/hopper)</th><td>{{.Settings.BottleThreshold}} / {{.Settings.CapLoadedThreshold}} / {{.Settings.CapFullThreshold}}</td></tr>
<tr><th>Rolling window</th><td>{{.Settings.RollingWindow}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Settings file</th><td>{{.Config.SettingsPath}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/settings">settings</a></p>

<script>
function command(cmd) {
  fetch("/control", {
    method: "POST",
    headers: { "Content-Type": "application/json" },
    body: JSON.stringify({ command: cmd })
  }).then(function() { location.reload(); });
}
setTimeout(function() { location.reload(); }, 5000);
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
