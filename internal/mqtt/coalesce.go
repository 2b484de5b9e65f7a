package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/dokzlo13/wxstatusd/internal/device"
)

type pendingState struct {
	snap  device.Snapshot
	timer *time.Timer
	gen   uint64
}

// StateCoalescer holds back device snapshots until a device has been quiet
// for the configured period, then publishes only the latest one.
type StateCoalescer struct {
	mu      sync.Mutex
	quiet   time.Duration
	gen     uint64
	pending map[string]pendingState
	publish func(device.Snapshot)
}

// NewStateCoalescer creates a coalescer. A non-positive quiet period
// publishes every snapshot immediately.
func NewStateCoalescer(quiet time.Duration, publish func(device.Snapshot)) *StateCoalescer {
	return &StateCoalescer{
		quiet:   quiet,
		pending: make(map[string]pendingState),
		publish: publish,
	}
}

// Add records s and restarts its device's quiet timer.
func (c *StateCoalescer) Add(s device.Snapshot) {
	if c.quiet <= 0 {
		c.publish(s)
		return
	}

	key := fmt.Sprintf("%s-%d", s.HomeID, s.NodeID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pending[key]; ok {
		p.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.pending[key] = pendingState{
		snap:  s,
		timer: time.AfterFunc(c.quiet, func() { c.flush(key, gen) }),
		gen:   gen,
	}
}

// flush publishes the pending snapshot for key if it still belongs to gen.
// A timer that fired while Add was replacing it finds a newer generation
// and does nothing.
func (c *StateCoalescer) flush(key string, gen uint64) {
	c.mu.Lock()
	p, ok := c.pending[key]
	if !ok || p.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	c.mu.Unlock()

	c.publish(p.snap)
}

// Close stops the timers and publishes whatever is still pending.
func (c *StateCoalescer) Close() {
	c.mu.Lock()
	pending := make([]device.Snapshot, 0, len(c.pending))
	for key, p := range c.pending {
		p.timer.Stop()
		pending = append(pending, p.snap)
		delete(c.pending, key)
	}
	c.mu.Unlock()

	for _, s := range pending {
		c.publish(s)
	}
}
