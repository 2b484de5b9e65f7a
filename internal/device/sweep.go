package device

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

// SweepConfig controls background synchronization.
type SweepConfig struct {
	InitialDelay time.Duration // Wait before the first sweep
	DevicePause  time.Duration // Pause between devices
	Interval     time.Duration // Repeat period; 0 = sweep once
}

// SweepStats summarises one sweep.
type SweepStats struct {
	Devices  int
	Failed   int
	Total    time.Duration
	SyncTime time.Duration // time spent inside device syncs
}

// RunSweeps syncs every device once after the initial delay, then re-reads
// every device each Interval until ctx is done. Devices are visited one at a
// time with a pause in between to keep the Z-Wave network responsive.
func (m *Manager) RunSweeps(ctx context.Context, cfg SweepConfig) {
	log.Info().
		Dur("initial_delay", cfg.InitialDelay).
		Dur("device_pause", cfg.DevicePause).
		Dur("interval", cfg.Interval).
		Msg("Device sync sweeper started")

	if !sleep(ctx, cfg.InitialDelay) {
		return
	}
	m.Sweep(ctx, cfg.DevicePause, false)

	if cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Device sync sweeper stopping")
			return
		case <-ticker.C:
			m.Sweep(ctx, cfg.DevicePause, true)
		}
	}
}

// Sweep syncs each device in turn. With force, synced devices are re-read.
func (m *Manager) Sweep(ctx context.Context, pause time.Duration, force bool) SweepStats {
	start := time.Now()
	devices := m.All()
	stats := SweepStats{Devices: len(devices)}

	for i, d := range devices {
		if i > 0 && !sleep(ctx, pause) {
			break
		}

		syncStart := time.Now()
		var err error
		if force {
			err = d.Resync(ctx)
		} else {
			err = d.SyncState(ctx)
		}
		stats.SyncTime += time.Since(syncStart)

		if err != nil {
			if ctx.Err() != nil {
				break
			}
			stats.Failed++
			if errors.Is(err, zwave.ErrProtocolUnresolved) {
				log.Error().Err(err).Msg("Z-Wave plugin protocol unresolved, abandoning sweep")
				break
			}
			log.Warn().Err(err).Stringer("device", d.Identity()).Msg("Device sync failed during sweep")
		}
	}

	stats.Total = time.Since(start)
	log.Info().
		Int("devices", stats.Devices).
		Int("failed", stats.Failed).
		Bool("forced", force).
		Int64("total_ms", stats.Total.Milliseconds()).
		Int64("sync_ms", stats.SyncTime.Milliseconds()).
		Msg("Device sync sweep finished")
	return stats
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
