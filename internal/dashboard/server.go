// Package dashboard implements the build-progress telemetry HTTP surface:
// a thin analogue of the teacher's dashboard server, backed by
// internal/reporter's Collector instead of a request history database.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thornforge/buildcore/internal/config"
	"github.com/thornforge/buildcore/internal/reporter"
	"github.com/thornforge/buildcore/internal/tracing"
	"github.com/thornforge/buildcore/internal/version"
	"github.com/thornforge/buildcore/web"
)

// Server is the HTTP surface exposing build progress, cache performance,
// and Prometheus-formatted metrics for a running daemon.
type Server struct {
	router    *chi.Mux
	collector *reporter.Collector
	cfg       *config.Config
	addr      string
	server    *http.Server
}

// NewServer wires routes for /api/stats, /metrics, and a static dashboard
// page served from the embedded web assets.
func NewServer(collector *reporter.Collector, cfg *config.Config, addr string) *Server {
	s := &Server{
		collector: collector,
		cfg:       cfg,
		addr:      addr,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Dashboard.AllowedOrigins))
	if cfg.Tracing.Enabled {
		r.Use(tracing.HTTPMiddleware)
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/config", s.handleGetConfig)
	r.Get("/metrics", reporter.PrometheusHandler(collector))

	staticFS := web.StaticFS()
	r.Handle("/*", http.FileServer(http.FS(staticFS)))

	s.router = r
	return s
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeout) * time.Second,
	}
	log.Info().Str("addr", s.addr).Msg("dashboard: listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Stats())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// corsMiddleware allows the dashboard's static page to call /api/* from a
// different origin during local development (e.g. a Vite dev server).
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				for _, o := range allowedOrigins {
					if o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						break
					}
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
