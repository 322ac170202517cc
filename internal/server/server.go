// Package server exposes the knowledge graph over HTTP: natural-language
// questions, a SPARQL protocol endpoint, entity lookups, graph statistics and
// Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/mlkg/internal/config"
	"github.com/scrypster/mlkg/internal/metrics"
	"github.com/scrypster/mlkg/internal/query"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// slowRequest is the duration past which a request is logged.
const slowRequest = 2 * time.Second

// NewHandler builds the routed handler. m may be nil.
func NewHandler(cfg *config.Config, svc *query.Service, m *metrics.Metrics) http.Handler {
	h := &apiHandlers{svc: svc}
	mux := http.NewServeMux()

	// API routes (require auth in production mode)
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/ask", instrument("/api/ask", m, h.Ask))
	apiMux.HandleFunc("/api/sparql", instrument("/api/sparql", m, h.SPARQL))
	apiMux.HandleFunc("/api/stats", instrument("/api/stats", m, h.Stats))
	apiMux.HandleFunc("/api/entities/", instrument("/api/entities/", m, h.Entity))
	mux.Handle("/api/", RequireAuth(apiMux, cfg))

	// Health endpoint: no auth required, used by monitoring
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": Version})
	})
	mux.Handle("/metrics", m.Handler())

	handler := RateLimitMiddleware(mux, NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst))
	return securityHeadersMiddleware(handler)
}

// Start listens on the configured address and serves until ctx is done.
// It returns the address actually bound, which differs from the configured
// one when the port is 0.
func Start(ctx context.Context, cfg *config.Config, svc *query.Service, m *metrics.Metrics) (string, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      NewHandler(cfg, svc, m),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()
	log.Printf("server: listening on http://%s", actualAddr)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: serve error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
	}()

	return actualAddr, nil
}
