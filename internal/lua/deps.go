package lua

import (
	"github.com/dokzlo13/wxstatusd/internal/actions"
	"github.com/dokzlo13/wxstatusd/internal/kv"
	"github.com/dokzlo13/wxstatusd/internal/lua/modules"
)

// RuntimeDeps groups all dependencies needed by the Lua runtime.
type RuntimeDeps struct {
	Registry *actions.Registry
	Invoker  *actions.Invoker
	Devices  modules.Devices
	Commands modules.Submitter
	KV       *kv.Manager // nil disables the kv module
}
