// Package gateway is the HTTP face of flowbook: it decrypts flow requests,
// hands them to the booking state machine and encrypts the answers.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/soyeahso/flowbook/internal/booking"
	"github.com/soyeahso/flowbook/internal/config"
	"github.com/soyeahso/flowbook/internal/flow"
	"github.com/soyeahso/flowbook/internal/hooks"
	"github.com/soyeahso/flowbook/internal/logging"
	"github.com/soyeahso/flowbook/internal/metrics"
)

// Machine answers one decrypted flow request.
type Machine interface {
	Handle(ctx context.Context, req flow.Request) booking.Result
}

// Server is the flow endpoint HTTP server.
type Server struct {
	cfg       config.ServerConfig
	appSecret string
	machine   Machine
	keys      *KeyBootstrapper
	metrics   *metrics.Metrics
	hooks     *hooks.Manager
	limiter   *hostLimiter
	log       *logging.Logger

	mu         sync.RWMutex
	addr       string
	httpServer *http.Server
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// WithMetrics sets the collectors served on /metrics.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAppSecret enables request signature verification.
func WithAppSecret(secret string) ServerOption {
	return func(s *Server) {
		s.appSecret = secret
	}
}

// New creates a new server.
func New(cfg config.ServerConfig, machine Machine, keys *KeyBootstrapper, log *logging.Logger, opts ...ServerOption) *Server {
	if cfg.FlowPath == "" {
		cfg.FlowPath = config.DefaultFlowPath
	}
	s := &Server{
		cfg:     cfg,
		machine: machine,
		keys:    keys,
		limiter: newHostLimiter(cfg.RateLimit),
		log:     log.Sub("gateway"),
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.AllowedOrigins)
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening for HTTP requests.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// Enable TLS if configured
	if s.cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertPath, s.cfg.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, tlsCfg)
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled; terminate TLS in front of this server")
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Str("flow_path", s.cfg.FlowPath).
		Bool("signature_check", s.appSecret != "").
		Bool("rate_limit", s.limiter != nil).
		Msg("flow endpoint ready")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventServerStart, map[string]any{
			"addr": ln.Addr().String(),
		})
	}

	// Shutdown when context is cancelled
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.log.Info().Msg("shutting down flow endpoint")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("shutdown incomplete")
		}
		s.keys.Wait()
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventServerStop, nil)
			s.hooks.Wait()
		}
	}()

	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}
