package web

import (
	"html/template"
	"io"
	"time"

	"github.com/sweeney/plant-logger/internal/logic"
	"github.com/sweeney/plant-logger/internal/status"
)

const stamp = "2006-01-02 15:04:05 MST"

var pageTmpl = template.Must(template.New("page").Funcs(template.FuncMap{
	"since": func(d time.Duration) string { return d.Round(time.Second).String() },
	"stamp": func(t time.Time) string { return t.UTC().Format(stamp) },
	"active": func(s logic.State) bool { return s == logic.StateActive },
	"orElse": func(s, fallback string) string {
		if s == "" {
			return fallback
		}
		return s
	},
}).Parse(pageHTML))

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>{{orElse .LoggerID "plant-logger"}}</title>
<style>
body { font: 14px/1.4 system-ui, sans-serif; background: #f4f7f2; color: #223; margin: 0; }
header { background: #2f6b3a; color: #fff; padding: .8em 1.2em; }
header small { opacity: .8; }
main { display: grid; grid-template-columns: repeat(auto-fit, minmax(240px, 1fr)); gap: 1em; padding: 1em; }
section { background: #fff; border-radius: 6px; padding: .6em 1em; box-shadow: 0 1px 2px #0002; }
section h2 { font-size: 1em; margin: .2em 0 .6em; color: #2f6b3a; }
dl { display: grid; grid-template-columns: max-content 1fr; gap: .2em 1em; margin: 0; }
dt { color: #667; }
dd { margin: 0; }
.big { font-size: 2em; }
.up { color: #1b7f2a; }
.down { color: #b3261e; }
footer { padding: 0 1.2em 1em; color: #667; }
</style>
</head>
<body>
<header>
<strong>{{orElse .LoggerID "unconfigured logger"}}</strong>
<small>paired with {{orElse .PairingID "nothing"}}</small>
</header>
<main>
<section>
<h2>Soil</h2>
{{with .LastReading}}<div class="big">{{printf "%.2f" .Moisture}}%</div>
<dl>
<dt>Air</dt><dd>{{printf "%.1f" .Temperature}}&deg;C, {{printf "%.1f" .Humidity}}% RH</dd>
<dt>Reported</dt><dd>{{stamp $.LastReadingAt}}</dd>
</dl>{{else}}<p>No reading reported yet.</p>{{end}}
{{with .LastError}}<p class="down">{{.}}</p>{{end}}
</section>
<section>
<h2>Session</h2>
<dl>
<dt>State</dt><dd class="{{if active .State}}up{{else}}down{{end}}">{{.State}}</dd>
<dt>Reporting</dt><dd>{{if .Active}}on{{else}}off{{end}}</dd>
<dt>Hub</dt><dd class="{{if .Connected}}up{{else}}down{{end}}">{{if .Authenticated}}authenticated{{else if .Connected}}connected{{else}}offline{{end}}</dd>
<dt>Socket</dt><dd>{{.Config.SocketURL}}</dd>
<dt>REST</dt><dd>{{.Config.RestURL}}</dd>
</dl>
</section>
<section>
<h2>Totals</h2>
<dl>
<dt>Ticks</dt><dd>{{.Counts.Ticks}}</dd>
<dt>Reports</dt><dd>{{.Counts.Reports}}</dd>
<dt>Skipped</dt><dd>{{.Counts.Skipped}}</dd>
<dt>Failures</dt><dd>{{.Counts.Failures}}</dd>
<dt>Probes</dt><dd>{{.Counts.Probes}}</dd>
<dt>Reconnects</dt><dd>{{.Counts.Reconnects}}</dd>
</dl>
</section>
</main>
<footer>
Up {{since .Up}} since {{stamp .StartTime}} &middot; every {{.Config.IntervalMs}}ms &middot; {{.Config.ConfigPath}}
&middot; <a href="/index.json">json</a> &middot; <a href="/metrics">metrics</a>
</footer>
</body>
</html>
`

type page struct {
	status.Snapshot
	Up time.Duration
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return pageTmpl.Execute(w, page{Snapshot: snap, Up: snap.Uptime()})
}
