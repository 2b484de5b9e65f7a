package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/config"
	"github.com/dokzlo13/wxstatusd/internal/device"
	"github.com/dokzlo13/wxstatusd/internal/kv"
	"github.com/dokzlo13/wxstatusd/internal/settings"
	"github.com/dokzlo13/wxstatusd/internal/status"
	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

// ZWaveService wraps the host connection, the configuration gateway and the
// device manager.
type ZWaveService struct {
	cfg    *config.Config
	status *status.Tracker

	Host    *zwave.HTTPHost
	Gateway *zwave.Gateway
	Manager *device.Manager
}

// NewZWaveService creates the Z-Wave components without touching the network.
func NewZWaveService(
	cfg *config.Config,
	buckets *kv.Manager,
	opts *settings.Settings,
	tracker *status.Tracker,
	hooks device.Hooks,
) *ZWaveService {
	host := zwave.NewHTTPHost(cfg.Host.URL, cfg.Host.Token, cfg.Host.Timeout.Duration())

	gateway := zwave.NewGateway(host, zwave.GatewayConfig{
		Plugin:        cfg.Host.Plugin,
		SlowThreshold: cfg.ZWave.SlowThreshold.Duration(),
		RateLimitRPS:  cfg.ZWave.RateLimitRPS,
	}, opts)
	gateway.OnFatal(func(err error) {
		log.Error().Err(err).Msg("Z-Wave plugin protocol unresolved, device commands disabled")
		tracker.SetFatal(err)
	})

	// Out-of-band changes may have happened while caching was off
	opts.OnCacheToggle(func(bool) {
		gateway.ClearCache()
	})

	retry := cfg.Sync.Retry
	manager := device.NewManager(host, gateway, device.ManagerOptions{
		Groups: device.NewKVGroupStore(buckets),
		Blink:  opts,
		Retry: device.RetryPolicy{
			Backoff:     retry.Backoff.Duration(),
			Multiplier:  retry.Multiplier,
			MaxBackoff:  retry.MaxBackoff.Duration(),
			MaxAttempts: retry.MaxAttempts,
		},
		Hooks: hooks,
	})

	return &ZWaveService{
		cfg:     cfg,
		status:  tracker,
		Host:    host,
		Gateway: gateway,
		Manager: manager,
	}
}

// Start discovers devices. Failure to reach the host is returned.
func (s *ZWaveService) Start(ctx context.Context) error {
	n, err := s.Manager.Discover(ctx)
	if err != nil {
		return err
	}
	s.status.SetOK(fmt.Sprintf("%d status-mode devices", n))
	return nil
}

// StartBackground starts the device sync sweeper.
func (s *ZWaveService) StartBackground(ctx context.Context) {
	go s.Manager.RunSweeps(ctx, device.SweepConfig{
		InitialDelay: s.cfg.Sync.InitialDelay.Duration(),
		DevicePause:  s.cfg.Sync.DevicePause.Duration(),
		Interval:     s.cfg.Sync.Interval.Duration(),
	})
}

// Close releases the host connection.
func (s *ZWaveService) Close() {
	if s.Host != nil {
		s.Host.Close()
	}
}
