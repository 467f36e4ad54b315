package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/sweeney/ballbalancer/internal/fault"
	"github.com/sweeney/ballbalancer/internal/status"
)

var funcs = template.FuncMap{
	"since": func(d time.Duration) string {
		return d.Truncate(time.Second).String()
	},
	// fault renders the latched state, with a CSS class to match.
	"fault": func(s fault.State) string {
		if s == "" {
			return "UNKNOWN"
		}
		return string(s)
	},
	"class": func(s fault.State) string {
		switch s {
		case fault.StateNormal:
			return "ok"
		case fault.StateFaulted:
			return "faulted"
		}
		return "unknown"
	},
	"mm": func(meters float64) string {
		return fmt.Sprintf("%.1f mm", meters*1000)
	},
	"deg": func(rad float64) string {
		return fmt.Sprintf("%.2f°", rad*180/math.Pi)
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v)
	},
}

var page = template.Must(template.New("page").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Ball Balancer</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1.5em; }
th, td { text-align: left; padding: 3px 8px; border-bottom: 1px solid #ccc; }
th { width: 35%; font-weight: normal; color: #555; }
.ok { color: green; }
.faulted { color: red; font-weight: bold; }
.unknown { color: orange; }
</style>
</head>
<body>
<h1>Ball Balancer</h1>
<table>
<tr><th>Fault</th><td id="fault-state" class="{{class .Fault}}">{{fault .Fault}}</td></tr>
<tr><th>Motors</th><td>{{if .MotorsEnabled}}enabled{{else}}disabled{{end}}</td></tr>
<tr><th>Faults / stops / clears</th><td>{{.Counts.Faults}} / {{.Counts.Stops}} / {{.Counts.Clears}}{{with .EventsDropped}} ({{.}} events dropped){{end}}</td></tr>
</table>
{{with .LastCycle}}
<table>
<tr><th>Cycle</th><td>{{.Seq}}</td></tr>
<tr><th>Contact</th><td>{{if .Ball.Contact}}yes{{else}}no{{end}}</td></tr>
{{if .Ball.Contact}}<tr><th>Ball</th><td>{{mm .Ball.X}}, {{mm .Ball.Y}}</td></tr>{{end}}
<tr><th>Tilt</th><td>{{deg (index .Angle 0)}}, {{deg (index .Angle 1)}}</td></tr>
<tr><th>Duty</th><td>{{pct (index .Duty 0)}}, {{pct (index .Duty 1)}}</td></tr>
{{with .ScanErr}}<tr><th>Scan error</th><td class="faulted">{{.}}</td></tr>{{end}}
</table>
{{end}}
<table>
<tr><th>Scan time</th><td>{{.ScanTime}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}ok{{else}}faulted{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{with .Config.Broker}} ({{.}}){{end}}</td></tr>
<tr><th>Telemetry</th><td>{{with .Config.TelemetryEvery}}every {{.}} cycles{{else}}off{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{with .Config.HeartbeatMs}}{{.}}ms{{else}}off{{end}}</td></tr>
<tr><th>Gains</th><td>{{range $i, $k := .Config.Gains}}{{if $i}}, {{end}}{{$k}}{{end}}</td></tr>
<tr><th>Up</th><td>{{since .Uptime}} since {{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
</table>
<p><a href="/index.json">JSON</a></p>
</body>
</html>
`))

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return page.Execute(w, snap)
}
