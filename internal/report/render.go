package report

import (
	"io"
	"strings"
	"text/template"
)

var panel = template.Must(template.New("panel").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`== {{.Title}} ==
Run Summary {{.RunID}} ({{.GraphID}})
Salvage  {{.SalvageEarned}}
Cores    {{.CoresEarned}}
{{- if .Score}}
Score    {{.Score}}
{{- end}}
{{range .Breakdown}}  {{printf "%-18s" .Label}} +{{.Salvage}}
{{end -}}
{{- if .Visited}}Route: {{join .Visited " > "}}
{{end -}}
{{- if .Notes}}Notes: {{join .Notes "; "}}
{{end -}}
{{- with .Leaderboard}}Leaderboard: {{.Status}}{{if .Rank}} (rank {{.Rank}}){{end}}
{{end -}}
[{{join .Actions "] ["}}]
`))

// Render writes the plain-text panel.
func Render(w io.Writer, sum Summary) error {
	return panel.Execute(w, sum)
}
