// Package server exposes the session over HTTP: a websocket control and event
// endpoint at /ws and Prometheus metrics at /metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	applog "lantern/internal/log"
	"lantern/internal/metrics"
)

// Server is the HTTP front end.
type Server struct {
	hub      *Hub
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates a Server listening on addr once started.
func New(addr string, hub *Hub) *Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	return &Server{
		hub: hub,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		done: make(chan struct{}),
	}
}

// Handler returns the routing handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		defer close(s.done)
		applog.Infof("Server: Listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("Server: Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Close disconnects websocket clients and shuts the HTTP server down.
func (s *Server) Close(ctx context.Context) error {
	applog.Infof("Server: Closing server")
	s.hub.Close()
	err := s.server.Shutdown(ctx)
	if s.listener != nil {
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}
	return err
}
