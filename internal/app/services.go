package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/actions"
	"github.com/dokzlo13/wxstatusd/internal/api"
	"github.com/dokzlo13/wxstatusd/internal/command"
	"github.com/dokzlo13/wxstatusd/internal/config"
	"github.com/dokzlo13/wxstatusd/internal/db"
	"github.com/dokzlo13/wxstatusd/internal/device"
	"github.com/dokzlo13/wxstatusd/internal/eventbus"
	"github.com/dokzlo13/wxstatusd/internal/kv"
	"github.com/dokzlo13/wxstatusd/internal/ledger"
	luart "github.com/dokzlo13/wxstatusd/internal/lua"
	"github.com/dokzlo13/wxstatusd/internal/settings"
	"github.com/dokzlo13/wxstatusd/internal/status"
)

// Options tweak service construction.
type Options struct {
	// ResetOptions drops persisted option overrides before they are loaded.
	ResetOptions bool
}

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB       *db.DB
	Ledger   *ledger.Ledger
	KV       *kv.Manager
	Settings *settings.Settings
	Status   *status.Tracker
	Bus      *eventbus.Bus

	// Action system
	Registry *actions.Registry
	Invoker  *actions.Invoker

	// High-level services
	ZWave     *ZWaveService
	Commands  *command.Dispatcher
	Lua       *LuaService // nil without a script
	API       *APIService
	Health    *HealthService
	MQTT      *MQTTService
	Telemetry *TelemetryService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, opts Options) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Ledger = ledger.New(database.DB)
	s.KV = kv.NewManager(database.DB)
	s.Status = status.NewTracker()

	if opts.ResetOptions {
		if _, err := s.KV.Delete(settings.BucketName); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to reset options: %w", err)
		}
		log.Info().Msg("Persisted options cleared")
	}

	s.Settings, err = settings.New(s.KV.Bucket(settings.BucketName), settings.Defaults{
		BlinkFrequency: cfg.ZWave.BlinkFrequency,
		CacheEnabled:   cfg.ZWave.CacheEnabled,
		LogLevel:       cfg.Log.ZerologLevel(),
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Bus = eventbus.NewWithConfig(cfg.Commands.Workers, cfg.Commands.QueueSize)

	s.ZWave = NewZWaveService(cfg, s.KV, s.Settings, s.Status, s.deviceHooks())
	s.Commands = command.NewDispatcher(s.Bus, s.ZWave.Manager, s.Ledger, cfg.Commands.Timeout.Duration())
	s.Commands.SetHealth(s.Status)

	s.Registry = actions.NewRegistry()
	s.Invoker = actions.NewInvoker(s.Registry, s.Ledger)

	if cfg.Script != "" {
		s.Lua = NewLuaService(cfg, luart.RuntimeDeps{
			Registry: s.Registry,
			Invoker:  s.Invoker,
			Devices:  s.ZWave.Manager,
			Commands: s.Commands,
			KV:       s.KV,
		})
	}

	apiDeps := api.Deps{
		Devices:  s.ZWave.Manager,
		Commands: s.Commands,
		Settings: s.Settings,
		Ledger:   s.Ledger,
		Cache:    s.ZWave.Gateway,
		Status:   s.Status,
	}
	if s.Lua != nil {
		apiDeps.Actions = s.queueAction("api")
	}
	s.API = NewAPIService(cfg, apiDeps)
	s.Health = NewHealthService(cfg, s.Status)
	s.MQTT = NewMQTTService(cfg)
	s.Telemetry = NewTelemetryService(cfg)

	return s, nil
}

// deviceHooks publishes state changes to the bus and records sync outcomes.
func (s *Services) deviceHooks() device.Hooks {
	return device.Hooks{
		OnChange: func(snap device.Snapshot) {
			s.Bus.Publish(eventbus.Event{Type: eventbus.EventTypeDeviceState, Payload: snap})
		},
		OnSynced: func(snap device.Snapshot, attempts int) {
			s.appendLedger(ledger.Record{
				Type:    ledger.EventDeviceSyncCompleted,
				Source:  "sync",
				Subject: fmt.Sprintf("%s-%d", snap.HomeID, snap.NodeID),
				Payload: map[string]any{"attempts": attempts, "ref": snap.Ref},
			})
		},
		OnDegraded: func(id device.Identity, attempts int, err error) {
			s.appendLedger(ledger.Record{
				Type:    ledger.EventDeviceSyncDegraded,
				Source:  "sync",
				Subject: id.Address(),
				Payload: map[string]any{"attempts": attempts, "ref": id.Ref, "error": err.Error()},
			})
		},
	}
}

func (s *Services) appendLedger(r ledger.Record) {
	if err := s.Ledger.Append(r); err != nil {
		log.Error().Err(err).Str("event", string(r.Type)).Msg("Failed to append ledger record")
	}
}

// queueAction returns a runner that validates the action name and hands
// the request to the Lua worker through the bus.
func (s *Services) queueAction(source string) func(name string, args map[string]any) error {
	return func(name string, args map[string]any) error {
		if !s.Invoker.HasAction(name) {
			return fmt.Errorf("%w: %q", actions.ErrUnknownAction, name)
		}
		ok := s.Bus.Publish(eventbus.Event{
			Type:    eventbus.EventTypeAction,
			Payload: eventbus.ActionRequest{Name: name, Args: args, Source: source},
		})
		if !ok {
			return command.ErrQueueFull
		}
		return nil
	}
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	// Load Lua script before discovery so action definitions exist early
	if s.Lua != nil {
		if err := s.Lua.LoadScript(); err != nil {
			return err
		}
	}

	// Health first so probes see the unknown state during discovery
	s.Health.Start(ctx)

	if err := s.ZWave.Start(ctx); err != nil {
		return err
	}
	s.Telemetry.Start(ctx, s.ZWave.Gateway)

	s.Commands.Register(ctx)
	if s.Lua != nil {
		s.Lua.Start(ctx, s.Bus)
	}

	var mqttActions func(string, map[string]any) error
	if s.Lua != nil {
		mqttActions = s.queueAction("mqtt")
	}
	if err := s.MQTT.Start(s.Bus, s.Commands, mqttActions); err != nil {
		return err
	}

	s.ZWave.StartBackground(ctx)
	s.API.Start(ctx)
	go s.Ledger.RunRetention(ctx, s.cfg.Ledger.Retention(), s.cfg.Ledger.CleanupInterval.Duration())

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	timeout := s.cfg.ShutdownTimeout.Duration()

	// Drain the bus first so queued state changes reach MQTT before it closes
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Lua != nil {
		s.Lua.Close(timeout)
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Telemetry != nil {
		s.Telemetry.Close()
	}
	if s.ZWave != nil {
		s.ZWave.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
