// Package admin serves the loopback-only JSON admin API and the Prometheus
// scrape endpoint.
package admin

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/maloquacious/gamingdb/internal/metrics"
	"github.com/maloquacious/gamingdb/internal/respond"
)

// Options configures the admin router.
type Options struct {
	Version       string
	SchemaVersion string
	BuildDate     string
	DBPath        string
	Metrics       *metrics.Collector
	// Shutdown is called once the shutdown response has been written.
	Shutdown func()
	Now      func() time.Time
}

// StatusResponse is the /admin/status body.
type StatusResponse struct {
	Version       string `json:"version"`
	SchemaVersion string `json:"schemaVersion"`
	BuildDate     string `json:"buildDate"`
	Database      string `json:"database"`
	Time          string `json:"time"`
	Mode          string `json:"mode"`
}

// Handler builds the admin router.
func Handler(opts Options) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/admin").Subrouter()
	api.Use(respond.JSONOnly)

	api.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		respond.JSON(w, req, http.StatusOK, StatusResponse{
			Version:       opts.Version,
			SchemaVersion: opts.SchemaVersion,
			BuildDate:     opts.BuildDate,
			Database:      opts.DBPath,
			Time:          opts.Now().UTC().Format(time.RFC3339),
			Mode:          "running",
		})
	}).Methods(http.MethodGet, http.MethodHead)

	api.HandleFunc("/shutdown", func(w http.ResponseWriter, req *http.Request) {
		respond.JSON(w, req, http.StatusAccepted, map[string]string{"status": "shutting down"})
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		if opts.Shutdown != nil {
			opts.Shutdown()
		}
	}).Methods(http.MethodPost)

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = respond.NotFound()
	r.MethodNotAllowedHandler = respond.MethodNotAllowed()
	return r
}
