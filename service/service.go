// Package service serves the results of a run over HTTP while the process
// is alive: a health check, the prometheus metrics and the rendered
// per-test coverage HTML.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/cryspen/mach-test/metrics"
)

const (
	DefaultHost = "0.0.0.0"
	DefaultPort = "8080"

	CoveragePath = "/coverage/"
)

type Config struct {
	Addr        string // host:port, defaults to DefaultHost:DefaultPort
	CoverageDir string // Served under CoveragePath when set
	Log         log.Logger
}

type Service struct {
	addr        string
	coverageDir string
	log         log.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

func New(cfg Config) *Service {
	if cfg.Addr == "" {
		cfg.Addr = net.JoinHostPort(DefaultHost, DefaultPort)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Service{
		addr:        cfg.Addr,
		coverageDir: cfg.CoverageDir,
		log:         cfg.Log.New("component", "service"),
	}
}

// Handler returns the HTTP routes of the service.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	if s.coverageDir != "" {
		mux.Handle(CoveragePath, http.StripPrefix(CoveragePath, http.FileServer(http.Dir(s.coverageDir))))
	}
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(mux)
}

// Start binds the listen address and serves in the background.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("service already started")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		metrics.RecordErrorDetails("service_listen", err)
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.server = &http.Server{Handler: s.Handler()}
	s.done = make(chan struct{})

	s.log.Info("starting report server", "addr", listener.Addr().String(), "coverage", s.coverageDir)
	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error serving reports", "err", err)
			metrics.RecordErrorDetails("service_serve", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server and waits for it to exit.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server, done := s.server, s.done
	s.mu.Unlock()
	if server == nil {
		return nil
	}

	s.log.Info("report server shutting down")
	err := server.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}
