package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/config"
	"github.com/dokzlo13/wxstatusd/internal/telemetry"
	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

// TelemetryService records configuration RPC timings to InfluxDB.
type TelemetryService struct {
	cfg      *config.Config
	recorder *telemetry.Recorder
}

// NewTelemetryService creates a new TelemetryService.
func NewTelemetryService(cfg *config.Config) *TelemetryService {
	return &TelemetryService{cfg: cfg}
}

// Start connects to InfluxDB and attaches the recorder to the gateway.
// An unreachable server only disables metrics.
func (s *TelemetryService) Start(ctx context.Context, gateway *zwave.Gateway) {
	if !s.cfg.InfluxDB.Enabled {
		return
	}

	c := s.cfg.InfluxDB
	recorder, err := telemetry.Connect(ctx, telemetry.Config{
		URL:           c.URL,
		Token:         c.Token,
		Org:           c.Org,
		Bucket:        c.Bucket,
		BatchSize:     c.BatchSize,
		FlushInterval: c.FlushInterval.Duration(),
	})
	if err != nil {
		log.Warn().Err(err).Str("url", c.URL).Msg("InfluxDB unavailable, RPC metrics disabled")
		return
	}

	s.recorder = recorder
	gateway.SetObserver(recorder)
	log.Info().Str("url", c.URL).Str("bucket", c.Bucket).Msg("Recording RPC metrics to InfluxDB")
}

// Close flushes pending points.
func (s *TelemetryService) Close() {
	s.recorder.Close()
}
