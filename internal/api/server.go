// Package api serves the scanner's read model over HTTP: runtime settings,
// the latest detection set, operational status, and a websocket stream of
// scan cycles. It is a consumer of the scanner, never a dependency of it.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
	"github.com/mkalra/crossarb/internal/scanner"
)

// Scanner is the slice of the scanner runtime the API needs.
type Scanner interface {
	Preferences() scanner.Preferences
	ApplyUpdate(scanner.Update) (scanner.Preferences, error)
	Latest(ctx context.Context) (models.OpportunitySet, bool)
	Status(ctx context.Context) scanner.Status
}

// Server is the HTTP and websocket front of one scanner process.
type Server struct {
	httpServer *http.Server
	hub        *Hub
}

// NewServer registers the routes and builds the server around addr. The hub
// must be running (Hub.Run) before clients receive live updates; until then
// connections still get their snapshot.
func NewServer(addr string, sc Scanner, hub *Hub) *Server {
	r := mux.NewRouter()
	h := &handlers{scanner: sc}

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", h.getSettings).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", h.putSettings).Methods(http.MethodPut)
	r.HandleFunc("/api/opportunities", h.getOpportunities).Methods(http.MethodGet)
	r.HandleFunc("/api/status", h.getStatus).Methods(http.MethodGet)
	if hub != nil {
		r.HandleFunc("/ws/opportunities", hub.Handle).Methods(http.MethodGet)
	}
	r.Use(requestLog)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		hub: hub,
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	logging.Infof("[api] listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Infof("[api] shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

// requestLog logs one line per request with status and duration. The
// recorder keeps Hijacker support so websocket upgrades pass through.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Debugf("[api] %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
