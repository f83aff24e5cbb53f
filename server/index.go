package server

import (
	"html/template"
	"net/http"
	"time"

	"velo/pkg/conf"
)

const indexTemplate = `<!DOCTYPE html>
<html>
<head>
<title>{{.Banner}} {{.Version}}</title>
<style>
    body { font-family: monospace; margin: 2em auto; width: 44em; color: #222; }
    h1 { font-size: 1.3em; }
    table { border-collapse: collapse; width: 100%; }
    th, td { text-align: left; padding: 0.3em 0.8em 0.3em 0; border-bottom: 1px solid #ddd; }
    .muted { color: #888; }
</style>
</head>
<body>
<h1>{{.Banner}} {{.Version}}</h1>
<p class="muted">up since {{.Started}} &mdash; {{.Targets}} configured target(s)</p>
<table>
<tr><th>session</th><th>target</th><th>status</th><th>commands</th></tr>
{{range .Sessions}}<tr><td>{{.ID}}</td><td>{{.Target}}</td><td>{{.Status}}</td><td>{{.Commands}}</td></tr>
{{else}}<tr><td colspan="4" class="muted">no live sessions</td></tr>
{{end}}</table>
<p class="muted">API at /api, metrics at /metrics</p>
</body>
</html>
`

var indexTmpl = template.Must(template.New("index").Parse(indexTemplate))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sessions := s.pool.List()
	infos := make([]sessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, infoOf(sess))
	}

	data := struct {
		Banner   string
		Version  string
		Started  string
		Targets  int
		Sessions []sessionInfo
	}{
		Banner:   conf.Banner,
		Version:  conf.Version,
		Started:  s.started.UTC().Format(time.RFC3339),
		Targets:  len(s.inv.Targets),
		Sessions: infos,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		s.logger.Debugf("Failed to render index - %v", err)
	}
}
