package device

import (
	"context"
	"errors"
	"sync"

	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

var errNodeAsleep = errors.New("node asleep")

type paramKey struct {
	node  byte
	param zwave.Param
}

type setCall struct {
	Node  byte
	Param zwave.Param
	Value int
}

// fakeGateway is an uncached in-memory configuration gateway.
type fakeGateway struct {
	mu       sync.Mutex
	values   map[paramKey]int
	gets     []paramKey
	sets     []setCall
	failGets int          // fail this many upcoming gets; -1 = all
	failSets map[byte]int // per node: fail this many upcoming sets; -1 = all
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{values: make(map[paramKey]int), failSets: make(map[byte]int)}
}

func (g *fakeGateway) Get(ctx context.Context, home string, node byte, param zwave.Param) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.gets = append(g.gets, paramKey{node, param})
	if g.failGets != 0 {
		if g.failGets > 0 {
			g.failGets--
		}
		return 0, errNodeAsleep
	}
	return g.values[paramKey{node, param}], nil
}

func (g *fakeGateway) Set(ctx context.Context, home string, node byte, param zwave.Param, length uint8, value int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n := g.failSets[node]; n != 0 {
		if n > 0 {
			g.failSets[node] = n - 1
		}
		return errNodeAsleep
	}
	g.sets = append(g.sets, setCall{Node: node, Param: param, Value: value})
	g.values[paramKey{node, param}] = value
	return nil
}

func (g *fakeGateway) set(node byte, param zwave.Param, value int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[paramKey{node, param}] = value
}

func (g *fakeGateway) failAllGets(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if on {
		g.failGets = -1
	} else {
		g.failGets = 0
	}
}

func (g *fakeGateway) getCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.gets)
}

func (g *fakeGateway) getParams(node byte) []zwave.Param {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []zwave.Param
	for _, k := range g.gets {
		if k.node == node {
			out = append(out, k.param)
		}
	}
	return out
}

// setsOf returns the writes to node, optionally limited to params.
func (g *fakeGateway) setsOf(node byte, params ...zwave.Param) []setCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []setCall
	for _, s := range g.sets {
		if s.Node != node {
			continue
		}
		if len(params) > 0 {
			match := false
			for _, p := range params {
				match = match || s.Param == p
			}
			if !match {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func colorParams() []zwave.Param {
	out := make([]zwave.Param, 7)
	for i := range out {
		out[i] = zwave.LedColorParam(i)
	}
	return out
}

func newTestDevice(gw Gateway, node byte, variant zwave.Variant, opts Options) *Device {
	id := Identity{HomeID: "E7A1B2C3", NodeID: node, Variant: variant, Name: "Node", Ref: 100 + int(node)}
	return New(id, gw, opts)
}

// fakeHost lists devices for discovery.
type fakeHost struct {
	mu      sync.Mutex
	version string // plugin version; empty = "4.0.0.0"
	devices []zwave.HostDevice
	names   map[int]string // overrides the display name at lookup time
}

func (h *fakeHost) PluginVersion(ctx context.Context, plugin string) (string, error) {
	if h.version != "" {
		return h.version, nil
	}
	return "4.0.0.0", nil
}

func (h *fakeHost) LegacyPluginFunction(ctx context.Context, plugin, function string, args ...any) (any, error) {
	return nil, nil
}

func (h *fakeHost) PluginFunction(ctx context.Context, plugin, function string, args ...any) (any, error) {
	return nil, nil
}

func (h *fakeHost) Devices(ctx context.Context) ([]zwave.HostDevice, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]zwave.HostDevice(nil), h.devices...), nil
}

func (h *fakeHost) Device(ctx context.Context, ref int) (zwave.HostDevice, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range h.devices {
		if d.Ref == ref {
			if name, ok := h.names[ref]; ok {
				d.Name, d.Location, d.Location2 = name, "", ""
			}
			return d, nil
		}
	}
	return zwave.HostDevice{}, errors.New("no such device")
}
