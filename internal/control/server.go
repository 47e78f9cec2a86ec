// Package control serves the local HTTP control surface.
//
// The surface mirrors what an operator needs at the remote site:
//
//   - POST /ptt/on  — request keying (goes through the tail-hang state machine)
//   - POST /ptt/off — request unkeying
//   - GET  /status  — read-only bridge session snapshot
//   - GET  /healthz — liveness probe; always 200 while the process serves HTTP
//   - GET  /readyz  — readiness probe; 200 only in steady-state relay
//   - GET  /metrics — Prometheus exposition
//
// Responses are JSON. The control endpoints are advisory inputs to the PTT
// controller, never direct hardware writes.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shackpi/remotetrx/internal/app"
)

const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// httpSource labels PTT requests that arrive over the control surface.
const httpSource = "http"

// Bridge is the orchestrator subset the control surface drives.
type Bridge interface {
	RequestKey(source string)
	RequestUnkey(source string)
	Status() app.Status
	Healthy() bool
}

// result is the JSON body for the ptt and probe endpoints.
type result struct {
	Status string            `json:"status"`
	PTT    string            `json:"ptt,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Server exposes the control surface over HTTP. It is safe for concurrent
// use; routes are fixed at construction time.
type Server struct {
	br   Bridge
	http *http.Server
}

// New creates a control server listening on addr once Run is called.
func New(addr string, br Bridge) *Server {
	s := &Server{br: br}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ptt/on", s.pttOn)
	mux.HandleFunc("POST /ptt/off", s.pttOff)
	mux.HandleFunc("GET /status", s.status)
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// Handler returns the underlying route handler, mainly for tests with
// httptest.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then drains in-flight requests with a
// bounded shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("control server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("control server: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(sctx)
}

// pttOn requests keying. The response reports acceptance of the request, not
// hardware state; GET /status reflects the actual controller state.
func (s *Server) pttOn(w http.ResponseWriter, _ *http.Request) {
	s.br.RequestKey(httpSource)
	writeJSON(w, http.StatusOK, result{Status: "ok", PTT: "on"})
}

func (s *Server) pttOff(w http.ResponseWriter, _ *http.Request) {
	s.br.RequestUnkey(httpSource)
	writeJSON(w, http.StatusOK, result{Status: "ok", PTT: "off"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.br.Status())
}

// healthz is a liveness probe. A running process that can serve HTTP is
// considered alive.
func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// readyz reports 200 only when the bridge is in steady-state relay: lifecycle
// running, both pipelines healthy and the transport connected.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	st := s.br.Status()
	checks := make(map[string]string, 3)

	checks["lifecycle"] = st.Lifecycle
	if st.Connected {
		checks["transport"] = "ok"
	} else {
		checks["transport"] = "fail: disconnected"
	}
	if st.Degraded {
		checks["pipelines"] = "fail: degraded"
	} else {
		checks["pipelines"] = "ok"
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !s.br.Healthy() {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// writeJSON encodes v as JSON with the given status code. On encoding failure
// it falls back to a plain 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
