// Package web provides the HTTP status and control surface for the
// bottle-filler daemon: a status page, a JSON status endpoint, runtime
// settings read/update, and the run/pause/stop operator commands.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/sweeney/bottle-filler/internal/control"
	"github.com/sweeney/bottle-filler/internal/settings"
	"github.com/sweeney/bottle-filler/internal/status"
)

// Server serves the status and control endpoints.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	cfg        *settings.Store
	ctrl       *control.Controller
}

// New creates a Server reading state from tracker, settings from cfg, and
// driving run-state transitions on ctrl.
func New(addr string, tracker *status.Tracker, cfg *settings.Store, ctrl *control.Controller) *Server {
	s := &Server{tracker: tracker, cfg: cfg, ctrl: ctrl}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/settings", s.handleSettings)
	mux.HandleFunc("/control", s.handleControl)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleSettings reads or updates the settings store. A POST body may be
// partial: unspecified fields keep their current values. Updates persist to
// the settings file and take effect on the next control decision.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeSettings(w, s.cfg.Get())

	case http.MethodPost:
		current := s.cfg.Get()
		if err := json.NewDecoder(r.Body).Decode(&current); err != nil {
			http.Error(w, fmt.Sprintf("parse settings: %v", err), http.StatusBadRequest)
			return
		}
		if err := s.cfg.Update(current); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeSettings(w, s.cfg.Get())

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// controlRequest is the body of a POST /control.
type controlRequest struct {
	Command string `json:"command"`
}

// controlResponse acknowledges a control command.
type controlResponse struct {
	RunState string `json:"run_state"`
}

// handleControl applies a run/pause/stop operator command. This endpoint is
// the only writer of the run state besides process shutdown.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("parse command: %v", err), http.StatusBadRequest)
		return
	}

	switch req.Command {
	case "run":
		s.ctrl.Run()
	case "pause":
		s.ctrl.Pause()
	case "stop":
		s.ctrl.Stop()
	default:
		http.Error(w, fmt.Sprintf("unknown command %q", req.Command), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(controlResponse{RunState: string(s.ctrl.State())})
}

func writeSettings(w http.ResponseWriter, v settings.Settings) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
