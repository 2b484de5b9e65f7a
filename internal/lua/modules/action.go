package modules

import (
	"context"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/wxstatusd/internal/actions"
)

// ActionModule provides action.define() and action.run() to Lua
type ActionModule struct {
	registry *actions.Registry
	invoker  *actions.Invoker
}

// NewActionModule creates a new action module
func NewActionModule(registry *actions.Registry, invoker *actions.Invoker) *ActionModule {
	return &ActionModule{registry: registry, invoker: invoker}
}

// Loader is the module loader for Lua
func (m *ActionModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "define", L.NewFunction(m.define))
	L.SetField(mod, "run", L.NewFunction(m.run))
	L.SetField(mod, "list", L.NewFunction(m.list))

	L.Push(mod)
	return 1
}

// define(name, function(args)) - Define an action
func (m *ActionModule) define(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	if err := m.registry.Register(&luaAction{L: L, name: name, fn: fn}); err != nil {
		L.RaiseError("failed to register action: %s", err.Error())
		return 0
	}

	log.Debug().Str("action", name).Msg("Lua action defined")
	return 0
}

// run(name, args) - Run an action now, recording the outcome
func (m *ActionModule) run(L *lua.LState) int {
	name := L.CheckString(1)
	args := LuaTableToMap(L.OptTable(2, L.NewTable()))

	ctx := luaContext(L)
	err := m.invoker.Invoke(ctx, actions.Request{Name: name, Args: args, Source: "lua"})

	// The nested call may have replaced the state's context
	L.SetContext(ctx)

	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

// list() -> names of every defined action
func (m *ActionModule) list(L *lua.LState) int {
	L.Push(GoToLuaValue(L, m.registry.Names()))
	return 1
}

// luaAction wraps a Lua function. It must only run on the VM goroutine.
type luaAction struct {
	L    *lua.LState
	name string
	fn   *lua.LFunction
}

func (a *luaAction) Name() string { return a.name }

func (a *luaAction) Execute(ctx context.Context, args map[string]any) error {
	a.L.SetContext(ctx)

	a.L.Push(a.fn)
	a.L.Push(MapToLuaTable(a.L, args))
	return a.L.PCall(1, 0, nil)
}
