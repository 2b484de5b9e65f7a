package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/actions"
	"github.com/dokzlo13/wxstatusd/internal/config"
	"github.com/dokzlo13/wxstatusd/internal/eventbus"
	luart "github.com/dokzlo13/wxstatusd/internal/lua"
)

// LuaService wraps the Lua runtime and runs queued actions on its worker.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
	invoker *actions.Invoker
	done    chan struct{}
	started bool
}

// NewLuaService creates a new LuaService.
func NewLuaService(cfg *config.Config, deps luart.RuntimeDeps) *LuaService {
	return &LuaService{
		cfg:     cfg,
		Runtime: luart.NewRuntime(deps),
		invoker: deps.Invoker,
		done:    make(chan struct{}),
	}
}

// LoadScript loads and executes the Lua script.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	return s.Runtime.LoadScript(s.cfg.Script)
}

// Start begins the Lua worker goroutine and takes action requests from the bus.
func (s *LuaService) Start(ctx context.Context, bus *eventbus.Bus) {
	s.started = true
	go func() {
		defer close(s.done)
		s.Runtime.Run(ctx)
	}()

	bus.Subscribe(eventbus.EventTypeAction, func(e eventbus.Event) {
		req, ok := e.Payload.(eventbus.ActionRequest)
		if !ok {
			log.Error().Type("payload", e.Payload).Msg("Unexpected action payload")
			return
		}

		queued := s.Runtime.Do(ctx, func(workCtx context.Context) {
			err := s.invoker.Invoke(workCtx, actions.Request{
				Name:           req.Name,
				Args:           req.Args,
				Source:         req.Source,
				IdempotencyKey: req.IdempotencyKey,
			})
			if err != nil {
				log.Error().Err(err).Str("action", req.Name).Str("source", req.Source).Msg("Action failed")
			}
		})
		if !queued {
			log.Warn().Str("action", req.Name).Msg("Lua runtime not accepting work, action dropped")
		}
	})
}

// Close waits for the worker to stop and closes the Lua state.
func (s *LuaService) Close(timeout time.Duration) {
	if s.started {
		select {
		case <-s.done:
		case <-time.After(timeout):
			log.Warn().Msg("Lua worker did not stop in time")
		}
	}
	s.Runtime.Close()
}
