package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	gosync "sync"
	"time"

	"github.com/wesm/coursesync/internal/config"
	"github.com/wesm/coursesync/internal/db"
	"github.com/wesm/coursesync/internal/sync"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildDate     string `json:"build_date"`
	SchemaVersion string `json:"schema_version"`
}

// SelectionStore persists the paths opted in for offline sync.
type SelectionStore interface {
	OfflineSyncSelections() ([]string, error)
	SetOfflineSyncSelections(paths []string) error
	ReplaceCourseSelections(entryIDs, paths []string) error
}

// Server exposes the entry tree, progress streams and writer
// ingestion over HTTP.
type Server struct {
	mu         gosync.RWMutex
	cfg        config.Config
	db         *db.DB
	writer     *sync.Writer
	observer   *sync.Observer
	interactor *sync.Interactor
	selections SelectionStore
	mux        *http.ServeMux
	httpSrv    *http.Server
	version    VersionInfo

	// handlerDelay is injected before each timeout-wrapped
	// handler, used only by tests to guarantee handlers
	// exceed a short timeout. Zero in production.
	handlerDelay time.Duration
	heartbeat    time.Duration
}

// New creates a new Server.
func New(
	cfg config.Config, database *db.DB,
	interactor *sync.Interactor, selections SelectionStore,
	opts ...Option,
) *Server {
	s := &Server{
		cfg:        cfg,
		db:         database,
		writer:     sync.NewWriter(database),
		observer:   sync.NewObserver(database),
		interactor: interactor,
		selections: selections,
		mux:        http.NewServeMux(),
		heartbeat:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build-time version metadata.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithHeartbeat sets the keepalive interval of event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

func (s *Server) routes() {
	s.mux.Handle("GET /api/v1/entries", s.withTimeout(s.handleGetEntries))
	// SSE: Do not use timeout, as these are long-lived connections.
	s.mux.HandleFunc("GET /api/v1/entries/watch", s.handleWatchEntries)
	s.mux.HandleFunc("GET /api/v1/progress/watch", s.handleWatchProgress)

	s.mux.Handle("GET /api/v1/progress", s.withTimeout(s.handleGetProgress))
	s.mux.Handle(
		"POST /api/v1/progress/start", s.withTimeout(s.handleStartRun),
	)
	s.mux.Handle(
		"POST /api/v1/progress/state", s.withTimeout(s.handleSaveState),
	)
	s.mux.Handle(
		"POST /api/v1/progress/download", s.withTimeout(s.handleSaveDownload),
	)
	s.mux.Handle(
		"POST /api/v1/progress/result", s.withTimeout(s.handleSaveResult),
	)

	s.mux.Handle("POST /api/v1/sync/retry", s.withTimeout(s.handleRetrySync))
	s.mux.Handle("POST /api/v1/sync/cancel", s.withTimeout(s.handleCancelSync))

	s.mux.Handle("GET /api/v1/selections", s.withTimeout(s.handleGetSelections))
	s.mux.Handle("PUT /api/v1/selections", s.withTimeout(s.handlePutSelections))

	s.mux.Handle("GET /api/v1/version", s.withTimeout(s.handleGetVersion))
}

func (s *Server) handleGetVersion(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, s.version)
}

// SetPort updates the listen port (for testing).
func (s *Server) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Port = port
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(logMiddleware(s.mux))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.mu.Lock()
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.httpSrv = srv
	s.mu.Unlock()
	slog.Info("starting server", "url", fmt.Sprintf("http://%s", addr))
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// FindAvailablePort finds an available port starting from the
// given port, binding to the specified host.
func FindAvailablePort(host string, start int) int {
	for port := start; port < start+100; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return port
		}
	}
	return start
}
