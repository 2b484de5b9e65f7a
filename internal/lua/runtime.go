// Package lua hosts the optional automation script.
package lua

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/wxstatusd/internal/actions"
	"github.com/dokzlo13/wxstatusd/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

const workQueueSize = 100

// LuaWork represents work to be executed on the Lua VM.
// All Lua execution MUST go through this.
type LuaWork func(ctx context.Context)

// Runtime owns one Lua VM and the single goroutine allowed to touch it.
type Runtime struct {
	L       *lua.LState
	deps    RuntimeDeps
	invoker *actions.Invoker

	workQueue chan LuaWork

	closing   chan struct{}
	closeOnce sync.Once
}

// NewRuntime creates a new Lua runtime with its modules preloaded.
func NewRuntime(deps RuntimeDeps) *Runtime {
	r := &Runtime{
		L:         lua.NewState(),
		deps:      deps,
		invoker:   deps.Invoker,
		workQueue: make(chan LuaWork, workQueueSize),
		closing:   make(chan struct{}),
	}

	r.registerModules()
	return r
}

func (r *Runtime) registerModules() {
	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.L.PreloadModule("action", modules.NewActionModule(r.deps.Registry, r.deps.Invoker).Loader)
	r.L.PreloadModule("wx", modules.NewWxModule(r.deps.Devices, r.deps.Commands).Loader)
	if r.deps.KV != nil {
		r.L.PreloadModule("kv", modules.NewKVModule(r.deps.KV).Loader)
	}
}

// Close signals the runtime to stop accepting new work and closes the Lua state.
// Call it after Run has returned.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	r.L.Close()
}

// Do queues work without blocking. Returns false if the runtime is closing,
// the queue is full, or ctx is done.
func (r *Runtime) Do(ctx context.Context, work LuaWork) bool {
	if r.isClosing() {
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	}

	select {
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSyncWithResult queues work, waits for space, and waits for the result.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrapped := LuaWork(func(c context.Context) {
		done <- work(c)
	})

	if r.isClosing() {
		return ErrRuntimeClosed
	}
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrapped:
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (r *Runtime) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// Invoke runs a registered action on the VM goroutine and waits for it.
func (r *Runtime) Invoke(ctx context.Context, req actions.Request) error {
	return r.DoSyncWithResult(ctx, func(c context.Context) error {
		return r.invoker.Invoke(c, req)
	})
}

// Run is the only goroutine that touches Lua. It exits when ctx is done or
// the runtime is closed, after draining queued work.
func (r *Runtime) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			r.drainQueue(ctx)
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

func (r *Runtime) executeWork(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript executes the script file. Call it before Run.
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Strs("actions", r.deps.Registry.Names()).Msg("Lua script loaded")
	return nil
}
