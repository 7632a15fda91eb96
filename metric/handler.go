package metric

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/docstore/errors"
)

const (
	defaultPort   = 9090
	defaultPath   = "/metrics"
	healthTimeout = 5 * time.Second
)

// Server exposes a Registry over HTTP at its metrics path plus /health
type Server struct {
	port     int
	path     string
	registry *Registry

	mu     sync.Mutex
	server *http.Server
	health func(ctx context.Context) (int, string)
}

// NewServer returns a server for registry. Zero values select port 9090 and /metrics.
func NewServer(port int, path string, registry *Registry) *Server {
	s := &Server{port: port, path: path, registry: registry}
	if s.port == 0 {
		s.port = defaultPort
	}
	if s.path == "" {
		s.path = defaultPath
	}
	return s
}

// SetHealthFunc makes /health report probe results instead of a static OK.
// fn returns the HTTP status code and a JSON body.
func (s *Server) SetHealthFunc(fn func(ctx context.Context) (int, string)) {
	s.mu.Lock()
	s.health = fn
	s.mu.Unlock()
}

// Handler returns the mux serving metrics and health.
func (s *Server) Handler() (http.Handler, error) {
	if s.registry == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "Handler", "registry is nil")
	}
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.registry.Prometheus(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", s.serveHealth)
	return mux, nil
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	probe := s.health
	s.mu.Unlock()

	if probe == nil {
		_, _ = w.Write([]byte("OK"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	code, body := probe(ctx)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// Start serves until Stop is called, then returns nil.
func (s *Server) Start() error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrInvalidArgument, "Server", "Start", "server already running")
	}
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(s.port)),
		Handler:           handler,
		ReadHeaderTimeout: healthTimeout,
	}
	s.server = srv
	s.mu.Unlock()

	err = srv.ListenAndServe()
	if err == nil || stderrors.Is(err, http.ErrServerClosed) {
		return nil
	}
	s.mu.Lock()
	if s.server == srv {
		s.server = nil
	}
	s.mu.Unlock()
	return errors.WrapFatal(err, "Server", "Start", "listen on "+srv.Addr)
}

// Stop shuts the server down gracefully. It is a no-op when not running.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown")
	}
	return nil
}

// Address returns the local URL of the metrics endpoint
func (s *Server) Address() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}
