package dashboard

const homeTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>cellvm</title>
<style>
body { font-family: ui-sans-serif, system-ui, sans-serif; background: #111827; color: #f3f4f6; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { padding: 4px 12px; text-align: left; border-bottom: 1px solid #374151; }
.mono { font-family: ui-monospace, Menlo, Consolas, monospace; }
.failed { color: #f87171; }
.err { color: #fbbf24; }
</style>
</head>
<body>
<h1>cellvm</h1>
<p>Up {{.Status.Uptime}}, {{.Status.RunsServed}} runs served{{if .Status.Journal}}, {{.Status.RunsRecorded}} recorded{{end}}.</p>

{{if .Status.Journal}}
<h2>Recent runs</h2>
{{with .RunsErr}}<p class="err">{{.}}</p>{{end}}
<table>
<tr><th>Seq</th><th>Started</th><th>Program</th><th>Status</th><th>Steps</th><th>A</th><th>B</th><th>C</th><th>D</th><th>Stack</th><th>Time (µs)</th></tr>
{{range .Runs}}
<tr{{if .Failed}} class="failed"{{end}}>
<td>{{.Seq}}</td><td>{{.Started}}</td><td class="mono">{{.ProgramID}}</td><td>{{.Status}}</td><td>{{.Steps}}</td>
{{range .Registers}}<td>{{.}}</td>{{end}}
<td>{{.StackSize}}</td><td>{{.DurationUs}}</td>
</tr>
{{else}}
<tr><td colspan="11">No runs yet</td></tr>
{{end}}
</table>
{{end}}

{{if .Status.Store}}
<h2>Programs</h2>
{{with .ProgramsErr}}<p class="err">{{.}}</p>{{end}}
<table>
<tr><th>Name</th><th>ID</th><th>Cells</th><th>Added</th></tr>
{{range .Programs}}
<tr><td>{{or .Name "-"}}</td><td class="mono">{{.ID}}</td><td>{{.Cells}}</td><td>{{.Added}}</td></tr>
{{else}}
<tr><td colspan="4">Store is empty</td></tr>
{{end}}
</table>
{{end}}
</body>
</html>
`
