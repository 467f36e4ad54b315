// Package web serves a read-only view of the balancer's status.
package web

import (
	"context"
	"net/http"

	"github.com/sweeney/ballbalancer/internal/status"
)

// Server renders tracker snapshots as HTML and JSON.
type Server struct {
	tracker *status.Tracker
	mux     *http.ServeMux
	srv     *http.Server
}

// New creates a Server bound to addr. Nothing listens until ListenAndServe.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /{$}", s.page)
	s.mux.HandleFunc("GET /index.html", s.page)
	s.mux.HandleFunc("GET /index.json", s.json)
	s.srv = &http.Server{Addr: addr, Handler: s.mux}
	return s
}

// Handler exposes the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Snapshots go stale within a cycle, so nothing is cached.
func noStore(w http.ResponseWriter, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	noStore(w, "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) json(w http.ResponseWriter, r *http.Request) {
	noStore(w, "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}
