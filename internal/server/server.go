// Package server is the HTTP boundary: request validation, identity
// extraction and status mapping around the dispatch engine.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meetmail/internal/dispatch"
	"meetmail/internal/storage"
	"meetmail/internal/transport"
	logx "meetmail/pkg/logx"
)

const (
	serviceName    = "meetmail"
	serviceVersion = "1.0.0"
)

type Config struct {
	Addr            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// RateWindowSeconds and RateMaxRequests only shape the 429 response
	// body; admission itself lives in the engine.
	RateWindowSeconds int
	RateMaxRequests   int
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":8080"
	}
	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		// Large enough for a full retry cycle (3 attempts, 2s+4s backoff).
		c.WriteTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.RateWindowSeconds <= 0 {
		c.RateWindowSeconds = 60
	}
	if c.RateMaxRequests <= 0 {
		c.RateMaxRequests = 10
	}
	return c
}

// Engine is the dispatch surface the server consumes.
type Engine interface {
	Send(ctx context.Context, req dispatch.Request) dispatch.Result
}

type Server struct {
	cfg   Config
	log   logx.Logger
	eng   Engine
	ping  func(ctx context.Context) error
	store storage.Store

	http *http.Server
}

// New builds the server. pinger is used by /health to probe the upstream
// transport; pass nil to skip the probe. store backs the delivery-log
// inspection endpoint; pass nil when persistence is disabled.
func New(cfg Config, log logx.Logger, eng Engine, pinger transport.Submitter, store storage.Store) *Server {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, log: log, eng: eng, store: store}
	if pinger != nil {
		s.ping = pinger.Ping
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(securityHeaders)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/api/v1/send-email", s.handleSend)
	r.Get("/api/v1/deliveries", s.handleDeliveries)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start serves until ctx is canceled, then drains with ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(sctx); err != nil {
		return err
	}
	err := <-errCh
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
