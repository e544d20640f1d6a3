package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ShutdownTimeout controls how long to wait for in-flight requests on shutdown.
var ShutdownTimeout = 10 * time.Second

// Server wraps the http.Server with the service's timeouts. Reads are allowed
// longer than headers so avatar uploads can stream in.
type Server struct {
	inner *http.Server
}

// New constructs a server listening on the provided port.
func New(port int, handler http.Handler) *Server {
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
			MaxHeaderBytes:    64 << 10,
		},
	}
}

// Addr reports the listen address.
func (s *Server) Addr() string { return s.inner.Addr }

// Start begins serving HTTP traffic. A graceful shutdown is not an error.
func (s *Server) Start() error {
	if err := s.inner.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
