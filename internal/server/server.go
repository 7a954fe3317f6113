// Package server exposes the practicelog JSON API and the
// embedded web frontend.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"practicelog/internal/config"
	"practicelog/internal/db"
	"practicelog/internal/web"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Server is the HTTP server that serves the frontend and REST API.
type Server struct {
	mu      sync.RWMutex
	cfg     config.Config
	db      *db.DB
	mux     *http.ServeMux
	httpSrv *http.Server
	version VersionInfo

	staticHandler http.Handler
}

// New creates a new Server.
func New(cfg config.Config, database *db.DB, opts ...Option) *Server {
	assets, err := web.Assets()
	if err != nil {
		log.Fatalf("embedded frontend not found: %v", err)
	}

	s := &Server{
		cfg:           cfg,
		db:            database,
		mux:           http.NewServeMux(),
		staticHandler: http.FileServerFS(assets),
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

func (s *Server) routes() {
	// API v1 routes
	s.mux.Handle("GET /api/v1/sessions", s.withTimeout(s.handleListSessions))
	s.mux.Handle("POST /api/v1/sessions", s.withTimeout(s.handleCreateSession))
	s.mux.Handle("GET /api/v1/sessions/{id}", s.withTimeout(s.handleGetSession))
	s.mux.Handle(
		"POST /api/v1/sessions/{id}/topics", s.withTimeout(s.handleAddSessionTopic),
	)

	s.mux.Handle("GET /api/v1/dashboard", s.withTimeout(s.handleDashboard))
	s.mux.Handle("GET /api/v1/analytics", s.withTimeout(s.handleAnalytics))

	s.mux.Handle("GET /api/v1/instruments", s.withTimeout(s.handleListInstruments))
	s.mux.Handle("GET /api/v1/topics", s.withTimeout(s.handleListTopics))
	s.mux.Handle("GET /api/v1/tags", s.withTimeout(s.handleListTags))
	s.mux.Handle("GET /api/v1/stats", s.withTimeout(s.handleGetStats))
	s.mux.Handle("GET /api/v1/version", s.withTimeout(s.handleGetVersion))

	// Export: no timeout handler, to support large downloads
	// without buffering.
	s.mux.Handle(
		"GET /api/v1/export.json", http.HandlerFunc(s.handleExportJSON),
	)
	s.mux.Handle(
		"GET /api/v1/export.csv", http.HandlerFunc(s.handleExportCSV),
	)
	s.mux.Handle("POST /api/v1/import", s.withTimeout(s.handleImport))

	// Embedded frontend fallback. No timeout handler for static
	// assets to avoid buffering.
	s.mux.Handle("/", http.HandlerFunc(s.handleStatic))
}

func (s *Server) handleGetVersion(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, s.version)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	s.staticHandler.ServeHTTP(w, r)
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(logMiddleware(s.mux))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	log.Printf("Starting server at http://%s", addr)
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

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set(
				"Access-Control-Allow-Origin", "*",
			)
			w.Header().Set(
				"Access-Control-Allow-Methods",
				"GET, POST, OPTIONS",
			)
			w.Header().Set(
				"Access-Control-Allow-Headers",
				"Content-Type",
			)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}
