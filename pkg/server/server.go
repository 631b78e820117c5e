package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/airdrop"
)

/*
Server exposes committed snapshots over HTTP. Proofs always come from a
stored snapshot; the server never recomputes balances.

Endpoints:
  GET /proof/{address}
    - Proof of address in the active snapshot
    - ?snapshot=<id> reads a specific stored snapshot instead
    - 404 when the address has no allocation

  GET /snapshot
    - Metadata of the active snapshot (id, round, merkleRoot, leafCount, totalAmount)

  GET /snapshots
    - Metadata of every stored snapshot, ordered by round

  GET /health
    - 200 when the snapshot store answers its health check
*/
type Server struct {
	service    *airdrop.Service
	limiter    *rate.Limiter
	logger     *zap.Logger
	httpServer *http.Server
}

// Config holds the HTTP server settings
type Config struct {
	Port int

	// RequestsPerSecond caps the request rate across all clients; 0 disables the limit
	RequestsPerSecond float64
	Burst             int
}

// NewServer creates a server serving proofs from svc
func NewServer(cfg Config, svc *airdrop.Service, l *zap.Logger) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	s := &Server{
		service: svc,
		logger:  l,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /proof/{address}", s.handleProof)
	mux.HandleFunc("GET /snapshot", s.handleActiveSnapshot)
	mux.HandleFunc("GET /snapshots", s.handleListSnapshots)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.rateLimited(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server in the background
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully drains in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
