// Package http serves the webhook event source and the health endpoint.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nextlevelbuilder/upsrelay/internal/state"
)

// Server is the relay's HTTP front.
type Server struct {
	srv     *http.Server
	limiter *RateLimiter
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Host          string
	Port          int
	WebhookSecret string
	RateLimitRPM  int
}

// NewServer builds the mux for /webhook and /health.
func NewServer(cfg ServerConfig, events Publisher, cache *state.Cache) *Server {
	limiter := NewRateLimiter(cfg.RateLimitRPM, 10)

	mux := http.NewServeMux()
	mux.Handle("POST /webhook", NewWebhookHandler(cfg.WebhookSecret, events, limiter))
	mux.Handle("GET /health", NewHealthHandler(cache))

	return &Server{
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
		limiter: limiter,
	}
}

// Handler exposes the mux, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.limiter.Stop()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	s.limiter.Stop()
	slog.Info("http server stopped")
	return err
}
