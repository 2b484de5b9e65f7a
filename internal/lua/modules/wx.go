package modules

import (
	"context"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/wxstatusd/internal/command"
	"github.com/dokzlo13/wxstatusd/internal/device"
	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

// Devices is the device surface scripts can see. *device.Manager implements it.
type Devices interface {
	Devices(ctx context.Context) map[string]*device.Device
	Groups() []string
	Collection(filter string) (*device.Collection, error)
}

// Submitter queues LED commands. *command.Dispatcher implements it.
type Submitter interface {
	Submit(cmd command.Command) (command.Command, error)
}

// WxModule exposes the status LEDs to Lua.
type WxModule struct {
	devices  Devices
	commands Submitter
}

// NewWxModule creates the wx module.
func NewWxModule(devices Devices, commands Submitter) *WxModule {
	return &WxModule{devices: devices, commands: commands}
}

// Loader is the module loader for Lua
func (m *WxModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "ALL", lua.LString(device.FilterAll))
	L.SetField(mod, "set_led", L.NewFunction(m.setLed))
	L.SetField(mod, "devices", L.NewFunction(m.listDevices))
	L.SetField(mod, "groups", L.NewFunction(m.groups))
	L.SetField(mod, "group", L.NewFunction(m.group))
	L.SetField(mod, "max_led_count", L.NewFunction(m.maxLedCount))

	L.Push(mod)
	return 1
}

// set_led(filter, led, color, blink) -> command id
// led is "all" or a 1-based position; color is a name or number.
func (m *WxModule) setLed(L *lua.LState) int {
	filter := L.CheckString(1)
	led, err := command.ParseLed(lua.LVAsString(L.CheckAny(2)))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	color, err := zwave.ParseColor(lua.LVAsString(L.CheckAny(3)))
	if err != nil {
		L.ArgError(3, err.Error())
		return 0
	}
	blink := L.OptBool(4, false)

	cmd, err := m.commands.Submit(command.Command{
		Filter: filter,
		Led:    led,
		Color:  color,
		Blink:  blink,
		Source: "lua",
	})
	if err != nil {
		L.RaiseError("set_led failed: %s", err.Error())
		return 0
	}

	L.Push(lua.LString(cmd.ID.String()))
	return 1
}

// devices() -> array of device tables
func (m *WxModule) listDevices(L *lua.LState) int {
	byName := m.devices.Devices(luaContext(L))

	tbl := L.NewTable()
	for name, d := range byName {
		snap := d.Snapshot()
		entry := L.NewTable()
		entry.RawSetString("name", lua.LString(name))
		entry.RawSetString("ref", lua.LNumber(snap.Ref))
		entry.RawSetString("filter", lua.LString(strconv.Itoa(snap.Ref)))
		entry.RawSetString("home_id", lua.LString(snap.HomeID))
		entry.RawSetString("node_id", lua.LNumber(snap.NodeID))
		entry.RawSetString("variant", lua.LString(snap.Variant))
		entry.RawSetString("led_count", lua.LNumber(len(snap.Leds)))
		entry.RawSetString("synced", lua.LBool(snap.Synced))
		entry.RawSetString("degraded", lua.LBool(snap.Degraded))
		entry.RawSetString("groups", GoToLuaValue(L, snap.Groups))
		tbl.Append(entry)
	}

	L.Push(tbl)
	return 1
}

// groups() -> array of group names
func (m *WxModule) groups(L *lua.LState) int {
	L.Push(GoToLuaValue(L, m.devices.Groups()))
	return 1
}

// group(name) -> the filter selecting that group
func (m *WxModule) group(L *lua.LState) int {
	L.Push(lua.LString(device.GroupFilter(L.CheckString(1))))
	return 1
}

// max_led_count(filter) -> number
func (m *WxModule) maxLedCount(L *lua.LState) int {
	c, err := m.devices.Collection(L.CheckString(1))
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(lua.LNumber(c.MaxLedCount()))
	return 1
}
