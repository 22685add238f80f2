package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HealthFunc returns the per-component status map served at /health.
type HealthFunc func() map[string]any

// Server is the monitor HTTP surface: /health and /metrics.
type Server struct {
	srv *http.Server
}

// NewServer builds the monitor server on the given listen address.
func NewServer(addr string, health HealthFunc, gatherer prometheus.Gatherer) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(health()); err != nil {
			log.Error().Err(err).Msg("Health encode failed")
		}
	}).Methods(http.MethodGet)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("Monitor server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
