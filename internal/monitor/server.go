package monitor

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cmbsolver/tuitcptester/internal/logging"
	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
)

// Server serves the hub over HTTP: GET /ws upgrades to the event stream,
// GET /health answers liveness probes.
type Server struct {
	hub *Hub
	srv *http.Server
	ln  net.Listener
}

func NewServer(addr string, hub *Hub) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWS)
	mux.HandleFunc("GET /health", handleHealth)

	return &Server{
		hub: hub,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds the listener and serves in the background. Bind failures
// surface here, not in the goroutine, so callers can fail fast on a
// configured address that is already taken.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errs.ErrBindFailed("monitor", "listen on "+s.srv.Addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Error("monitor server failed", logging.Field{Key: "error", Value: err})
		}
	}()

	logging.Info("monitor listening", logging.Field{Key: "address", Value: ln.Addr().String()})
	return nil
}

// Addr reports the bound address. Useful when the configured port is 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting subscribers, then disconnects the ones that
// remain. Upgraded sockets are not covered by http.Server.Shutdown, so the
// hub closes them itself.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.hub.Close()
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		logging.Warn("health: write response", logging.Field{Key: "error", Value: err})
	}
}
