package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/passvault/internal/vault"
	"github.com/rs/zerolog/log"
)

const (
	defaultRateLimit = 100
	defaultRateBurst = 200
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string
	TLSCertFile string
	TLSKeyFile  string

	// APIToken, when set, must be presented in X-Vault-Token on every
	// credential route.
	APIToken string

	// RateLimit is the per-client request rate per second; RateBurst the bucket size.
	RateLimit int
	RateBurst int
}

// Server is the API server.
type Server struct {
	vault   *vault.Vault
	cfg     Config
	httpSrv *http.Server
}

// NewServer creates a Server over v.
func NewServer(v *vault.Vault, cfg Config) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	return &Server{vault: v, cfg: cfg}
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(newRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst).middleware)
	r.Use(requestLogMiddleware)

	// Prometheus metrics (unauthenticated)
	r.Handle("/metrics", MetricsHandler())

	// Public routes
	r.Get("/v1/sys/health", s.HealthHandler)

	// Credential routes
	r.Group(func(r chi.Router) {
		if s.cfg.APIToken != "" {
			r.Use(tokenMiddleware(s.cfg.APIToken))
		}

		r.Post("/v1/credentials", s.CredentialCreateHandler)
		r.Get("/v1/credentials", s.CredentialListHandler)
		r.Get("/v1/credentials/{id}", s.CredentialGetHandler)
		r.Post("/v1/credentials/{id}/reveal", s.CredentialRevealHandler)
		r.Patch("/v1/credentials/{id}", s.CredentialUpdateHandler)
		r.Delete("/v1/credentials/{id}", s.CredentialDeleteHandler)
	})

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		s.httpSrv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	if s.cfg.APIToken == "" {
		log.Warn().Msg("no api_token configured; credential routes are unauthenticated")
	}
	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
