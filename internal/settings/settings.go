// Package settings holds the runtime options that can be changed while the
// daemon runs. Overrides are persisted in a kv bucket; config values are the
// defaults.
package settings

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/kv"
)

// BucketName is the kv bucket holding option overrides.
const BucketName = "options"

// DefaultBlinkFrequency is the single-LED blink frequency used when none is configured.
const DefaultBlinkFrequency = 5

const (
	keyBlinkFrequency = "ws_blink_frequency"
	keyCacheEnabled   = "cache_enabled"
	keyDebug          = "debug"
)

// ErrInvalidBlinkFrequency is returned for frequencies outside 1..255.
var ErrInvalidBlinkFrequency = errors.New("blink frequency must be between 1 and 255")

// Defaults are the configured starting values.
type Defaults struct {
	BlinkFrequency int
	CacheEnabled   bool
	LogLevel       zerolog.Level
}

// Values is a snapshot of every option.
type Values struct {
	BlinkFrequency int  `json:"blink_frequency"`
	CacheEnabled   bool `json:"cache_enabled"`
	Debug          bool `json:"debug"`
}

// Update carries the options to change; nil fields are left alone.
type Update struct {
	BlinkFrequency *int  `json:"blink_frequency,omitempty"`
	CacheEnabled   *bool `json:"cache_enabled,omitempty"`
	Debug          *bool `json:"debug,omitempty"`
}

// Settings exposes the options to hot paths without locking.
type Settings struct {
	bucket    kv.Bucket
	baseLevel zerolog.Level

	blinkFrequency atomic.Int32
	cacheEnabled   atomic.Bool
	debug          atomic.Bool

	mu            sync.Mutex
	onCacheToggle []func(enabled bool)
}

// New loads persisted overrides on top of defaults.
func New(bucket kv.Bucket, defaults Defaults) (*Settings, error) {
	if defaults.BlinkFrequency == 0 {
		defaults.BlinkFrequency = DefaultBlinkFrequency
	}
	if err := validateBlinkFrequency(defaults.BlinkFrequency); err != nil {
		return nil, err
	}

	s := &Settings{bucket: bucket, baseLevel: defaults.LogLevel}
	s.blinkFrequency.Store(int32(defaults.BlinkFrequency))
	s.cacheEnabled.Store(defaults.CacheEnabled)

	var freq int
	if ok, err := bucket.Load(keyBlinkFrequency, &freq); err != nil {
		return nil, err
	} else if ok {
		if err := validateBlinkFrequency(freq); err != nil {
			log.Warn().Int("value", freq).Msg("Ignoring persisted blink frequency")
		} else {
			s.blinkFrequency.Store(int32(freq))
		}
	}

	var enabled bool
	if ok, err := bucket.Load(keyCacheEnabled, &enabled); err != nil {
		return nil, err
	} else if ok {
		s.cacheEnabled.Store(enabled)
	}

	var debug bool
	if ok, err := bucket.Load(keyDebug, &debug); err != nil {
		return nil, err
	} else if ok && debug {
		s.debug.Store(true)
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	return s, nil
}

// BlinkFrequency returns the blink frequency written to single-LED devices.
func (s *Settings) BlinkFrequency() int {
	return int(s.blinkFrequency.Load())
}

// SetBlinkFrequency validates and persists the single-LED blink frequency.
func (s *Settings) SetBlinkFrequency(freq int) error {
	if err := validateBlinkFrequency(freq); err != nil {
		return err
	}
	if err := s.bucket.Put(keyBlinkFrequency, freq); err != nil {
		return fmt.Errorf("failed to persist blink frequency: %w", err)
	}
	s.blinkFrequency.Store(int32(freq))
	log.Info().Int("frequency", freq).Msg("Blink frequency changed")
	return nil
}

// CacheEnabled reports whether redundant configuration writes may be skipped.
func (s *Settings) CacheEnabled() bool {
	return s.cacheEnabled.Load()
}

// SetCacheEnabled persists the write cache toggle.
func (s *Settings) SetCacheEnabled(enabled bool) error {
	if err := s.bucket.Put(keyCacheEnabled, enabled); err != nil {
		return fmt.Errorf("failed to persist cache toggle: %w", err)
	}
	if s.cacheEnabled.Swap(enabled) == enabled {
		return nil
	}

	log.Info().Bool("enabled", enabled).Msg("Configuration cache toggled")

	s.mu.Lock()
	listeners := append([]func(bool){}, s.onCacheToggle...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(enabled)
	}
	return nil
}

// OnCacheToggle registers a listener called when the cache toggle changes.
func (s *Settings) OnCacheToggle(fn func(enabled bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCacheToggle = append(s.onCacheToggle, fn)
}

// Debug reports whether debug logging is forced on.
func (s *Settings) Debug() bool {
	return s.debug.Load()
}

// SetDebug raises the global log level to debug, or restores the configured
// level when turned off.
func (s *Settings) SetDebug(on bool) error {
	if err := s.bucket.Put(keyDebug, on); err != nil {
		return fmt.Errorf("failed to persist debug toggle: %w", err)
	}
	s.debug.Store(on)

	if on {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(s.baseLevel)
	}
	log.Info().Bool("debug", on).Msg("Debug logging toggled")
	return nil
}

// Values returns a snapshot of every option.
func (s *Settings) Values() Values {
	return Values{
		BlinkFrequency: s.BlinkFrequency(),
		CacheEnabled:   s.CacheEnabled(),
		Debug:          s.Debug(),
	}
}

// Apply changes every option set in u. Validation happens before anything
// is written.
func (s *Settings) Apply(u Update) error {
	if u.BlinkFrequency != nil {
		if err := validateBlinkFrequency(*u.BlinkFrequency); err != nil {
			return err
		}
	}

	if u.BlinkFrequency != nil {
		if err := s.SetBlinkFrequency(*u.BlinkFrequency); err != nil {
			return err
		}
	}
	if u.CacheEnabled != nil {
		if err := s.SetCacheEnabled(*u.CacheEnabled); err != nil {
			return err
		}
	}
	if u.Debug != nil {
		if err := s.SetDebug(*u.Debug); err != nil {
			return err
		}
	}
	return nil
}

func validateBlinkFrequency(freq int) error {
	if freq < 1 || freq > 255 {
		return fmt.Errorf("%w: %d", ErrInvalidBlinkFrequency, freq)
	}
	return nil
}
