// Package server runs the HTTP listeners of a development session: the
// artifact endpoint that script managers install from and the live-reload
// endpoint the injected client connects to.
package server

import (
	"bufio"
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/conneroisu/scriptsmith/internal/errors"
	"github.com/conneroisu/scriptsmith/internal/logging"
)

const (
	// DefaultMaxConnections caps concurrent connections per listener.
	DefaultMaxConnections = 256
	// ShutdownTimeout bounds graceful shutdown once the context is done.
	ShutdownTimeout = 5 * time.Second
)

// Server is one HTTP listener with graceful shutdown.
type Server struct {
	Name           string
	Addr           string
	Handler        http.Handler
	MaxConnections int

	logger logging.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// New creates a server; it does not listen until ListenAndServe.
func New(name, addr string, handler http.Handler, logger logging.Logger) *Server {
	return &Server{
		Name:           name,
		Addr:           addr,
		Handler:        handler,
		MaxConnections: DefaultMaxConnections,
		logger:         logger.WithComponent(name),
		ready:          make(chan struct{}),
	}
}

// ListenAndServe listens on Addr and serves until ctx is done, then shuts
// down gracefully. It returns nil after a clean shutdown and may only be
// called once.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return errors.NewNetworkError(errors.ErrCodeListen, "cannot listen on "+s.Addr, err).
			WithContext("server", s.Name)
	}
	if s.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.MaxConnections)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	httpServer := &http.Server{
		Handler:           logRequests(s.Handler, s.logger),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()

	s.logger.Info(ctx, "listening", "addr", ln.Addr().String())

	select {
	case err := <-serveErr:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.NewNetworkError(errors.ErrCodeListen, s.Name+" server failed", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(shutdownCtx, err, "forcing server close")
		_ = httpServer.Close()
	}
	<-serveErr
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// ListenAddr returns the bound address, or nil before Ready.
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes the connection through for the WebSocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func logRequests(next http.Handler, logger logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}
