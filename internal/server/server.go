package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/slidegen/internal/app"
)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second

	// In-flight requests get this long to finish once serving stops
	drainTimeout = 10 * time.Second
)

// Server exposes the group, job and control API plus the event WebSocket
type Server struct {
	app     *app.App
	handler http.Handler
}

// New builds the route table and wraps it in the middleware chain
func New(application *app.App) *Server {
	s := &Server{app: application}
	s.handler = s.withConditionalMiddleware(s.setupRoutes())
	return s
}

// Handler returns the routes wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the configured host and port. Port 0 picks a free port.
func (s *Server) Listen() (net.Listener, error) {
	addr := net.JoinHostPort(s.app.Config.Server.Host, strconv.Itoa(s.app.Config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve handles requests on ln until ctx is done, then drains in-flight
// requests and returns. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	s.app.Logger.Info().
		Str("address", ln.Addr().String()).
		Str("api", "http://"+ln.Addr().String()+"/api/groups").
		Msg("HTTP server listening")

	select {
	case err := <-served:
		return fmt.Errorf("serve %s: %w", ln.Addr(), err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("drain requests: %w", err)
	}
	<-served

	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}
