package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server exposes the scrape endpoint on its own port, apart from the API.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
	addr   string
}

// NewServer prepares a scrape server on port. Port 0 picks a free port.
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		logger: slog.Default().With("component", "metrics-server"),
	}
}

// Start binds the listener before returning, so a taken port is reported to
// the caller, then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("binding metrics listener %s: %w", s.srv.Addr, err)
	}
	s.addr = ln.Addr().String()
	s.logger.Info("metrics server listening", "addr", s.addr)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address, empty before Start.
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown stops the server, waiting at most timeout for scrapes in flight.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down metrics server: %w", err)
	}
	return nil
}
