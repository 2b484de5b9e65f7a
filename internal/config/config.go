// Package config loads the wxstatusd YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig      `yaml:"log"`
	Database        DatabaseConfig `yaml:"database"`
	Host            HostConfig     `yaml:"host"`
	ZWave           ZWaveConfig    `yaml:"zwave"`
	Sync            SyncConfig     `yaml:"sync"`
	Commands        CommandsConfig `yaml:"commands"`
	API             ServerConfig   `yaml:"api"`
	Healthcheck     ServerConfig   `yaml:"healthcheck"`
	MQTT            MQTTConfig     `yaml:"mqtt"`
	InfluxDB        InfluxConfig   `yaml:"influxdb"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	Script          string         `yaml:"script"` // Optional Lua automation script
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"`
}

// ZerologLevel parses Level, falling back to info.
func (c LogConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		return zerolog.InfoLevel
	}
	return level
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HostConfig points at the automation host bridge that owns the Z-Wave network.
type HostConfig struct {
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
	Plugin  string   `yaml:"plugin"`
}

// ZWaveConfig tunes the configuration gateway.
type ZWaveConfig struct {
	SlowThreshold  Duration `yaml:"slow_threshold"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"` // 0 = unlimited
	CacheEnabled   bool     `yaml:"cache_enabled"`
	BlinkFrequency int      `yaml:"blink_frequency"`
}

// SyncConfig controls the background device sync sweep.
type SyncConfig struct {
	InitialDelay Duration    `yaml:"initial_delay"`
	DevicePause  Duration    `yaml:"device_pause"`
	Interval     Duration    `yaml:"interval"` // 0 = sweep once
	Retry        RetryConfig `yaml:"retry"`
}

// RetryConfig controls per-device sync retries.
type RetryConfig struct {
	Backoff     Duration `yaml:"backoff"`
	Multiplier  float64  `yaml:"multiplier"`
	MaxBackoff  Duration `yaml:"max_backoff"`
	MaxAttempts int      `yaml:"max_attempts"` // 0 = unlimited
}

// CommandsConfig sizes the LED command queue.
type CommandsConfig struct {
	Workers   int      `yaml:"workers"`
	QueueSize int      `yaml:"queue_size"`
	Timeout   Duration `yaml:"timeout"` // 0 = no per-command deadline
}

// ServerConfig is a listen address for an optional HTTP server.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MQTTConfig contains broker settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`

	// Device state is published once a device has been quiet this long
	StateQuietPeriod Duration `yaml:"state_quiet_period"`
}

// InfluxConfig contains InfluxDB settings for RPC metrics
type InfluxConfig struct {
	Enabled       bool     `yaml:"enabled"`
	URL           string   `yaml:"url"`
	Token         string   `yaml:"token"`
	Org           string   `yaml:"org"`
	Bucket        string   `yaml:"bucket"`
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// Retention returns the retention period.
func (c LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Colors: true},
		Database: DatabaseConfig{Path: "./wxstatusd.sqlite"},
		Host: HostConfig{
			Timeout: Duration(30 * time.Second),
			Plugin:  "Z-Wave",
		},
		ZWave: ZWaveConfig{
			SlowThreshold:  Duration(2 * time.Second),
			CacheEnabled:   true,
			BlinkFrequency: 5,
		},
		Sync: SyncConfig{
			InitialDelay: Duration(20 * time.Second),
			DevicePause:  Duration(2 * time.Second),
			Retry: RetryConfig{
				Backoff:    Duration(time.Second),
				Multiplier: 1.0,
				MaxBackoff: Duration(time.Minute),
			},
		},
		Commands:    CommandsConfig{Workers: 1, QueueSize: 100},
		API:         ServerConfig{Enabled: true, Host: "0.0.0.0", Port: 8280},
		Healthcheck: ServerConfig{Host: "0.0.0.0", Port: 9090},
		MQTT: MQTTConfig{
			ClientID:    "wxstatusd",
			TopicPrefix:      "wxstatus",
			QoS:              1,
			StateQuietPeriod: Duration(250 * time.Millisecond),
		},
		InfluxDB: InfluxConfig{
			BatchSize:     100,
			FlushInterval: Duration(time.Second),
		},
		Ledger: LedgerConfig{
			CleanupInterval: Duration(24 * time.Hour),
			RetentionDays:   30,
		},
		ShutdownTimeout: Duration(5 * time.Second),
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it over Default and
// validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Non-positive sizes fall back to defaults
	if cfg.Commands.Workers <= 0 {
		cfg.Commands.Workers = 1
	}
	if cfg.Commands.QueueSize <= 0 {
		cfg.Commands.QueueSize = 100
	}
	if cfg.Sync.Retry.Multiplier < 1 {
		cfg.Sync.Retry.Multiplier = 1.0
	}
	if cfg.Ledger.RetentionDays <= 0 {
		cfg.Ledger.RetentionDays = 30
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Host.URL == "" {
		errs = append(errs, errors.New("host.url is required"))
	}
	if c.ZWave.BlinkFrequency < 1 || c.ZWave.BlinkFrequency > 255 {
		errs = append(errs, fmt.Errorf("zwave.blink_frequency must be between 1 and 255, got %d", c.ZWave.BlinkFrequency))
	}
	if c.ZWave.RateLimitRPS < 0 {
		errs = append(errs, errors.New("zwave.rate_limit_rps must not be negative"))
	}
	if c.Sync.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("sync.retry.max_attempts must not be negative"))
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
		}
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, errors.New("influxdb.url and influxdb.bucket are required when influxdb is enabled"))
	}
	return errors.Join(errs...)
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
