package zwave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultSlowThreshold is the RPC latency above which a warning is logged.
const DefaultSlowThreshold = 2 * time.Second

// ErrSetFailed is returned when the plugin reports an unsuccessful write.
var ErrSetFailed = errors.New("configuration set failed")

// CachePolicy decides whether redundant writes may be skipped.
type CachePolicy interface {
	CacheEnabled() bool
}

// Call describes one RPC issued by the gateway.
type Call struct {
	Op       string // "get" or "set"
	Function string
	Home     string
	Node     byte
	Param    Param
}

// Observer receives every completed RPC.
type Observer interface {
	ObserveRPC(call Call, elapsed time.Duration, err error)
}

// GatewayConfig holds gateway tuning.
type GatewayConfig struct {
	Plugin        string        // Host plugin name (default "Z-Wave")
	SlowThreshold time.Duration // Latency warning threshold (default 2s)
	RateLimitRPS  float64       // 0 = unlimited
}

// Gateway turns the host's plugin functions into parameter get/set
// operations. It resolves the calling convention once, caches every value it
// sees and skips writes that would not change the cached value.
//
// Thread Safety: all methods are safe for concurrent use.
type Gateway struct {
	host          Host
	plugin        string
	slowThreshold time.Duration
	limiter       *rate.Limiter
	cache         *Cache
	policy        CachePolicy

	mu         sync.Mutex
	protocol   Protocol
	resolveErr error
	observer   Observer
	onFatal    func(error)
}

// NewGateway creates a new gateway. A nil policy enables write caching.
func NewGateway(host Host, cfg GatewayConfig, policy CachePolicy) *Gateway {
	if cfg.Plugin == "" {
		cfg.Plugin = InterfaceZWave
	}
	if cfg.SlowThreshold == 0 {
		cfg.SlowThreshold = DefaultSlowThreshold
	}

	g := &Gateway{
		host:          host,
		plugin:        cfg.Plugin,
		slowThreshold: cfg.SlowThreshold,
		cache:         NewCache(),
		policy:        policy,
	}
	if cfg.RateLimitRPS > 0 {
		burst := int(cfg.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return g
}

// SetObserver installs an RPC observer.
func (g *Gateway) SetObserver(o Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observer = o
}

// OnFatal sets the callback invoked once when protocol resolution fails.
func (g *Gateway) OnFatal(fn func(error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onFatal = fn
}

// Protocol returns the current protocol state.
func (g *Gateway) Protocol() Protocol {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.protocol
}

// Cache returns the parameter cache.
func (g *Gateway) Cache() *Cache {
	return g.cache
}

// ClearCache drops every cached value, e.g. after out-of-band device changes.
func (g *Gateway) ClearCache() {
	g.cache.Clear()
	log.Info().Msg("Configuration cache cleared")
}

// resolve determines the protocol on first use. The mutex makes concurrent
// first calls wait for a single resolution; a failure is sticky.
func (g *Gateway) resolve(ctx context.Context) (Protocol, error) {
	g.mu.Lock()
	if g.protocol != ProtocolUnknown || g.resolveErr != nil {
		protocol, err := g.protocol, g.resolveErr
		g.mu.Unlock()
		return protocol, err
	}

	version, err := g.host.PluginVersion(ctx, g.plugin)
	if err != nil && ctx.Err() != nil {
		// Shutting down, not a resolution verdict
		g.mu.Unlock()
		return ProtocolUnknown, ctx.Err()
	}

	var protocol Protocol
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrProtocolUnresolved, err)
	} else {
		protocol, err = ResolveProtocol(version)
	}

	if err != nil {
		g.resolveErr = err
		onFatal := g.onFatal
		g.mu.Unlock()

		log.Error().Err(err).Str("plugin", g.plugin).Msg("Z-Wave plugin protocol resolution failed")
		if onFatal != nil {
			onFatal(err)
		}
		return ProtocolUnknown, err
	}

	g.protocol = protocol
	g.mu.Unlock()

	log.Info().
		Str("plugin", g.plugin).
		Str("version", version).
		Stringer("protocol", protocol).
		Msg("Resolved Z-Wave plugin protocol")
	return protocol, nil
}

// downgrade moves LegacyWithModernSetter to LegacyWithoutModernSetter.
func (g *Gateway) downgrade() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.protocol == ProtocolLegacyWithModernSetter {
		g.protocol = ProtocolLegacyWithoutModernSetter
		log.Info().
			Str("function", FuncModernSet).
			Msg("Z-Wave plugin predates modern setter, falling back to legacy setter")
	}
}

func (g *Gateway) call(ctx context.Context, protocol Protocol, c Call, args ...any) (any, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	var (
		result any
		err    error
	)
	if protocol.Legacy() {
		result, err = g.host.LegacyPluginFunction(ctx, g.plugin, c.Function, args...)
	} else {
		result, err = g.host.PluginFunction(ctx, g.plugin, c.Function, args...)
	}
	elapsed := time.Since(start)

	if elapsed > g.slowThreshold {
		log.Warn().
			Str("home", c.Home).
			Uint8("node", c.Node).
			Int64("ms", elapsed.Milliseconds()).
			Msg("Node was very slow to respond and might need to be optimized")
	}

	g.mu.Lock()
	observer := g.observer
	g.mu.Unlock()
	if observer != nil {
		observer.ObserveRPC(c, elapsed, err)
	}

	if err != nil {
		return nil, fmt.Errorf("%s %s:%d:%s: %w", c.Function, c.Home, c.Node, c.Param, err)
	}
	return result, nil
}

// Get reads a parameter from the device. Reads are never served from the
// cache; the returned value is stored so later writes can be compared.
func (g *Gateway) Get(ctx context.Context, home string, node byte, param Param) (int, error) {
	protocol, err := g.resolve(ctx)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	c := Call{Op: "get", Function: FuncGet, Home: home, Node: node, Param: param}
	result, err := g.call(ctx, protocol, c, home, node, uint8(param))
	if err != nil {
		return 0, err
	}

	value, err := toInt(result)
	if err != nil {
		return 0, fmt.Errorf("%s %s:%d:%s: %w", FuncGet, home, node, param, err)
	}

	g.cache.Set(CacheKey{Home: home, Node: node, Param: param}, value)

	log.Debug().
		Str("home", home).
		Uint8("node", node).
		Stringer("param", param).
		Int("value", value).
		Int64("ms", time.Since(start).Milliseconds()).
		Msg("Retrieved configuration parameter")
	return value, nil
}

// Set writes a parameter. When caching is enabled and the cached value
// already equals value, no RPC is issued. The cache is updated only after
// the plugin reports success.
func (g *Gateway) Set(ctx context.Context, home string, node byte, param Param, length uint8, value int) error {
	key := CacheKey{Home: home, Node: node, Param: param}
	if g.cacheEnabled() {
		if cached, ok := g.cache.Get(key); ok && cached == value {
			log.Debug().
				Str("home", home).
				Uint8("node", node).
				Stringer("param", param).
				Int("value", value).
				Msg("Skipping configuration set, value unchanged")
			return nil
		}
	}

	protocol, err := g.resolve(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	c := Call{Op: "set", Function: protocol.SetterFunction(), Home: home, Node: node, Param: param}
	result, err := g.call(ctx, protocol, c, home, node, uint8(param), length, value)
	if err != nil {
		return err
	}

	if result == nil && protocol == ProtocolLegacyWithModernSetter {
		g.downgrade()
		protocol = ProtocolLegacyWithoutModernSetter
		c.Function = protocol.SetterFunction()
		result, err = g.call(ctx, protocol, c, home, node, uint8(param), length, value)
		if err != nil {
			return err
		}
	}

	ok, outcome := setOutcome(result)

	log.Debug().
		Str("home", home).
		Uint8("node", node).
		Stringer("param", param).
		Int("value", value).
		Uint8("length", length).
		Str("result", outcome).
		Int64("ms", time.Since(start).Milliseconds()).
		Msg("Set configuration parameter")

	if !ok {
		return fmt.Errorf("%w: %s %s:%d:%s=%d returned %q", ErrSetFailed, c.Function, home, node, param, value, outcome)
	}

	g.cache.Set(key, value)
	return nil
}

func (g *Gateway) cacheEnabled() bool {
	if g.policy == nil {
		return true
	}
	return g.policy.CacheEnabled()
}
