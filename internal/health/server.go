// Package health serves the database-backed liveness and readiness probes.
//
// /health, /ready and /live share one handler: each request checks that the
// database file exists (initializing it if not), probes it read-only, and
// answers 200 with status "ok" or 503 with status "error". Nothing is cached
// between requests.
package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/maloquacious/gamingdb/internal/logger"
	"github.com/maloquacious/gamingdb/internal/metrics"
	"github.com/maloquacious/gamingdb/internal/respond"
	"github.com/maloquacious/gamingdb/internal/store"
)

const (
	// DefaultService is the service name reported in every response.
	DefaultService = "gaming_database"
	serverHeader   = "GamingDatabaseHealth/1.0"
	requestIDKey   = "X-Request-ID"
)

// Routes are the probe paths. All behave identically.
var Routes = []string{"/health", "/ready", "/live"}

// Status is the probe response body.
type Status struct {
	Service  string          `json:"service"`
	Status   string          `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Database *DatabaseStatus `json:"database,omitempty"`
	Time     int64           `json:"time"`
}

// DatabaseStatus describes the probed database file.
type DatabaseStatus struct {
	Path      string `json:"path"`
	Reachable bool   `json:"reachable"`
	Detail    string `json:"detail,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Initializer creates the database when it is missing.
type Initializer interface {
	Ensure(ctx context.Context) error
}

// Options configures a Server. DBPath is required.
type Options struct {
	DBPath       string
	Initializer  Initializer
	Check        CheckFunc
	ProbeTimeout time.Duration
	Service      string
	Logger       logger.Logger
	Metrics      *metrics.Collector
	Now          func() time.Time
}

// Server answers health probes for one database file.
type Server struct {
	dbPath  string
	ensurer Initializer
	check   CheckFunc
	timeout time.Duration
	service string
	log     logger.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewServer fills unset options with defaults: a read-only DatabaseCheck,
// DefaultProbeTimeout and DefaultService.
func NewServer(opts Options) *Server {
	s := &Server{
		dbPath:  opts.DBPath,
		ensurer: opts.Initializer,
		check:   opts.Check,
		timeout: opts.ProbeTimeout,
		service: opts.Service,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultProbeTimeout
	}
	if s.check == nil {
		s.check = DatabaseCheck(s.dbPath, s.timeout)
	}
	if s.service == "" {
		s.service = DefaultService
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Handler returns the router for the probe port. Unknown paths get 404 and
// methods other than GET and HEAD get 405.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	for _, route := range Routes {
		r.HandleFunc(route, s.serveProbe).Methods(http.MethodGet, http.MethodHead)
	}
	r.NotFoundHandler = respond.NotFound()
	r.MethodNotAllowedHandler = respond.MethodNotAllowed()
	return withServerHeader(withRequestID(r))
}

func (s *Server) serveProbe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	code, status := s.Check(r.Context())
	elapsed := time.Since(start)

	s.metrics.RecordProbe(r.URL.Path, status.Status, elapsed)
	if code == http.StatusOK {
		s.log.Debug("probe %s ok in %s request_id=%s", r.URL.Path, elapsed, w.Header().Get(requestIDKey))
	} else {
		s.log.Warn("probe %s failed in %s request_id=%s: %s", r.URL.Path, elapsed, w.Header().Get(requestIDKey), reasonOf(status))
	}

	respond.JSON(w, r, code, status)
}

// Check derives the current health of the database and the HTTP status
// that reports it. The file check, any initialization and the probe share
// one timeout.
func (s *Server) Check(ctx context.Context) (int, Status) {
	status := Status{Service: s.service, Time: s.now().Unix()}

	detail, err := runCheck(ctx, s.dbPath, s.derive, s.timeout)
	var ierr *initFailure
	switch {
	case errors.As(err, &ierr):
		status.Status = "error"
		status.Reason = ierr.err.Error()
		return http.StatusServiceUnavailable, status
	case err != nil:
		status.Status = "error"
		status.Database = &DatabaseStatus{Path: s.dbPath, Reachable: false, Reason: probeReason(err)}
		return http.StatusServiceUnavailable, status
	}

	status.Status = "ok"
	status.Database = &DatabaseStatus{Path: s.dbPath, Reachable: true, Detail: detail}
	return http.StatusOK, status
}

// initFailure marks an initializer error so Check reports it at the top level.
type initFailure struct {
	err error
}

func (e *initFailure) Error() string { return e.err.Error() }

func (e *initFailure) Unwrap() error { return e.err }

// derive initializes a missing database, then runs the configured check.
func (s *Server) derive(ctx context.Context) (string, error) {
	state, err := store.CheckFile(s.dbPath)
	if err == nil && state == store.FileMissing && s.ensurer != nil {
		if err := s.ensurer.Ensure(ctx); err != nil {
			return "", &initFailure{err: err}
		}
	}
	return s.check(ctx)
}

func probeReason(err error) string {
	var perr *ProbeError
	if errors.As(err, &perr) {
		return perr.Err.Error()
	}
	return err.Error()
}

func reasonOf(st Status) string {
	if st.Reason != "" {
		return st.Reason
	}
	if st.Database != nil {
		return st.Database.Reason
	}
	return ""
}

func withServerHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", serverHeader)
		next.ServeHTTP(w, r)
	})
}

// withRequestID echoes the caller's X-Request-ID or assigns a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDKey)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDKey, id)
		next.ServeHTTP(w, r)
	})
}
