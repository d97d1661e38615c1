// Package web serves the logger's status page, JSON status, health checks
// and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/plant-logger/internal/logic"
	"github.com/sweeney/plant-logger/internal/status"
)

// Server is the HTTP status server.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker

	// Log receives template errors. Defaults to the standard logrus logger.
	Log logrus.FieldLogger
}

// New creates a Server that reads state from tracker and exposes metrics
// gathered from g. A nil g leaves /metrics unregistered.
func New(addr string, tracker *status.Tracker, g prometheus.Gatherer) *Server {
	s := &Server{tracker: tracker, Log: logrus.StandardLogger()}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	if g != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.tracker.Snapshot()); err != nil {
		s.Log.Warnf("render status page: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

type health struct {
	State     logic.State `json:"state"`
	Connected bool        `json:"connected"`
	Ready     bool        `json:"ready"`
}

func (s *Server) health() health {
	snap := s.tracker.Snapshot()
	return health{
		State:     snap.State,
		Connected: snap.Connected,
		Ready:     snap.State == logic.StateActive && snap.Authenticated,
	}
}

// handleHealth answers 200 while the process is alive and serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.health()
	code := http.StatusOK
	if h.State == logic.StateTerminated {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, h)
}

// handleReady answers 200 only while the session is authenticated and ticking.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	h := s.health()
	code := http.StatusOK
	if !h.Ready {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, h)
}

func writeHealth(w http.ResponseWriter, code int, h health) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(h)
}
