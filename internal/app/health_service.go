package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/config"
	"github.com/dokzlo13/wxstatusd/internal/status"
)

// HealthService provides HTTP health check endpoints.
type HealthService struct {
	cfg    *config.Config
	status *status.Tracker
	server *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(cfg *config.Config, tracker *status.Tracker) *HealthService {
	return &HealthService{
		cfg:    cfg,
		status: tracker,
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

// Handler serves /health (503 once fatal) and /ready (200 only when OK).
func (s *HealthService) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		code := http.StatusOK
		if s.status.IsFatal() {
			code = http.StatusServiceUnavailable
		}
		writeReport(w, code, s.status.Report())
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		report := s.status.Report()
		code := http.StatusOK
		if report.State != status.OK {
			code = http.StatusServiceUnavailable
		}
		writeReport(w, code, report)
	})

	return mux
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.Host, s.cfg.Healthcheck.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Health check server error")
	}
}

func writeReport(w http.ResponseWriter, code int, report status.Report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report) //nolint:errcheck
}
