package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/morezero/pkgservice-client/pkg/pkgservice"
)

const httpLogPrefix = "server:http"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.sim.Health(ctx)
	w.Header().Set("Content-Type", "application/json")
	if h.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(h)
}

// homePageTemplate lists every repository with the install state of its packages.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Package Service</title>
  <style>
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy, .error { color: #cc0000; font-weight: bold; }
  </style>
</head>
<body>
  <h1>Package Service</h1>
  <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span> ({{.Health.Downloads}} downloads in flight)</p>
  {{range .Repositories}}
  <section>
    <h2>{{.Name}}</h2>
    <p>{{.URL}}</p>
    {{if .Error}}
    <p class="error">{{.Error}}</p>
    {{else}}
    <table>
      <thead><tr><th>Package</th><th>Latest</th><th>Status</th><th>Target</th><th>Installed</th></tr></thead>
      <tbody>
        {{range .Rows}}
        <tr><td>{{.ID}}</td><td>{{.Latest}}</td><td>{{.State.Status}}</td><td>{{.State.Target}}</td><td>{{.State.Version}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
  {{end}}
</body>
</html>
`

type homeRow struct {
	ID     string
	Latest string
	State  pkgservice.PackageState
}

type homeRepository struct {
	URL   string
	Name  string
	Rows  []homeRow
	Error string
}

type homeData struct {
	Health       pkgservice.Health
	Repositories []homeRepository
}

// handleHome renders the status page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{Health: s.sim.Health(ctx)}
		for _, url := range s.sim.Catalog().Repositories() {
			data.Repositories = append(data.Repositories, s.homeRepository(ctx, url))
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", httpLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

func (s *Server) homeRepository(ctx context.Context, url string) homeRepository {
	out := homeRepository{URL: url, Name: url}
	repo, err := s.sim.Repository(ctx, url)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Name = repo.Name
	states, err := s.sim.RepositoryStatuses(ctx, url)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	for _, id := range repo.PackageIDs() {
		latest, _ := repo.Latest(id)
		out.Rows = append(out.Rows, homeRow{ID: id, Latest: latest.Version, State: states[id]})
	}
	return out
}
