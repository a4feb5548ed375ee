// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-bioauth.
//
// go-bioauth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-bioauth/internal/config"
	"github.com/jeremyhahn/go-bioauth/pkg/ceremony"
	cerhttp "github.com/jeremyhahn/go-bioauth/pkg/ceremony/http"
	"github.com/jeremyhahn/go-bioauth/pkg/lockout"
	"github.com/jeremyhahn/go-bioauth/pkg/metrics"
	"github.com/jeremyhahn/go-bioauth/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const gaugeInterval = 15 * time.Second

// Server represents the REST API server hosting the WebAuthn ceremony
// endpoints, the demo login gate and the operational endpoints.
type Server struct {
	server     *http.Server
	config     *config.Config
	service    *ceremony.Service
	store      *ceremony.MemoryStore
	challenges *ceremony.ChallengeManager
	tracker    *lockout.Tracker
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	version    string
	startedAt  time.Time
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// New assembles the full server from configuration: in-memory stores,
// challenge manager, lockout tracker, token generator, ceremony service
// and the chi router.
func New(cfg *config.Config, version string, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	store := ceremony.NewMemoryStore()
	ceremonyCfg := cfg.CeremonyConfig()
	challenges := ceremony.NewChallengeManager(ceremonyCfg.ChallengeTTL, logger)
	tracker := lockout.NewTracker(*cfg.LockoutConfig(), logger)

	var tokens ceremony.TokenGenerator
	if cfg.Tokens.Enabled {
		key, err := loadSigningKey(cfg.Tokens.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load token signing key: %w", err)
		}
		generator, err := ceremony.NewJWTGenerator(*cfg.TokenConfig(), key)
		if err != nil {
			return nil, fmt.Errorf("failed to create token generator: %w", err)
		}
		tokens = generator
	}

	service, err := ceremony.NewService(ceremony.ServiceParams{
		Config:      ceremonyCfg,
		Identities:  store,
		Credentials: store,
		Challenges:  challenges,
		Lockout:     tracker,
		Tokens:      tokens,
		Logger:      logger,
	})
	if err != nil {
		challenges.Stop()
		tracker.Stop()
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimitConfig())

	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	srv := &Server{
		config:     cfg,
		service:    service,
		store:      store,
		challenges: challenges,
		tracker:    tracker,
		limiter:    limiter,
		logger:     logger,
		version:    version,
		startedAt:  time.Now(),
		stopCh:     make(chan struct{}),
	}

	srv.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.setupRouter(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	return srv, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(MetricsMiddleware)
	r.Use(CORSMiddleware)
	r.Use(ratelimit.Middleware(s.limiter))

	if s.config.Health.Enabled {
		r.Get("/health", s.HealthHandler)
		r.Head("/health", s.HealthHandler)
		r.Get("/health/live", s.LivenessHandler)
		r.Get("/health/ready", s.ReadinessHandler)
	}

	if s.config.Metrics.Enabled {
		r.Handle(s.config.Metrics.Path, promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.LoginHandler)

		r.Route("/webauthn", func(r chi.Router) {
			cerhttp.MountChi(r, cerhttp.NewHandler(s.service).WithLogger(s.logger))
		})
	})

	return r
}

// Start starts the REST API server. It blocks until the listener
// returns.
func (s *Server) Start() error {
	go s.gaugeWorker()

	if s.config.TLS.Enabled {
		s.logger.Info("Starting HTTPS server",
			"addr", s.server.Addr,
			"rp_id", s.config.RelyingParty.ID,
			"version", s.version)

		if err := s.server.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
		return nil
	}

	s.logger.Info("Starting HTTP server",
		"addr", s.server.Addr,
		"rp_id", s.config.RelyingParty.ID,
		"version", s.version)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server and its background workers.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	s.stopOnce.Do(func() { close(s.stopCh) })
	s.challenges.Stop()
	s.tracker.Stop()
	s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Router returns the configured handler. Exposed for tests.
func (s *Server) Router() http.Handler {
	return s.server.Handler
}

// gaugeWorker periodically refreshes the uptime and occupancy gauges.
func (s *Server) gaugeWorker() {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.SetServerUptime(time.Since(s.startedAt).Seconds())
			metrics.SetPendingChallenges(float64(s.challenges.Pending()))
			metrics.SetLockedIdentities(float64(s.tracker.Stats().LockedIdentities))
		case <-s.stopCh:
			return
		}
	}
}

// loadSigningKey reads an EC private key in PEM form. An empty path
// yields a nil key, which makes the generator mint an ephemeral one.
func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return nil, nil
	}

	// #nosec G304 - Key file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key in %s is not an ECDSA key", path)
		}
		return ecKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q in %s", block.Type, path)
	}
}
