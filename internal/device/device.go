// Package device models WX200-family switches: per-device LED state kept in
// step with the physical node, collections of devices addressed by a single
// command, group membership, and discovery through the host.
package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

var (
	// ErrLedOutOfRange is returned when an LED index exceeds the device's LED count.
	ErrLedOutOfRange = errors.New("LED index out of range")

	// ErrInvalidColor is returned for colors outside the eight defined values.
	ErrInvalidColor = errors.New("invalid LED color")

	// ErrSyncDegraded is returned when a capped retry policy gives up.
	ErrSyncDegraded = errors.New("device sync degraded")
)

// Gateway reads and writes configuration parameters.
// *zwave.Gateway implements it.
type Gateway interface {
	Get(ctx context.Context, home string, node byte, param zwave.Param) (int, error)
	Set(ctx context.Context, home string, node byte, param zwave.Param, length uint8, value int) error
}

// BlinkFrequencySource supplies the blink frequency written to single-LED
// devices. *settings.Settings implements it.
type BlinkFrequencySource interface {
	BlinkFrequency() int
}

type fixedFrequency int

func (f fixedFrequency) BlinkFrequency() int { return int(f) }

// Identity is the immutable discovery-time view of a device.
type Identity struct {
	HomeID  string
	NodeID  byte
	Variant zwave.Variant
	Name    string
	Ref     int
}

// Address returns the "<home>-<node>" address.
func (id Identity) Address() string {
	return fmt.Sprintf("%s-%d", id.HomeID, id.NodeID)
}

func (id Identity) String() string {
	return fmt.Sprintf("%s %s (#%d)", id.Variant, id.Address(), id.Ref)
}

// Hooks are optional callbacks fired outside the device lock.
type Hooks struct {
	// OnChange fires after a successful LED write or sync.
	OnChange func(Snapshot)
	// OnSynced fires after a full state read succeeded.
	OnSynced func(s Snapshot, attempts int)
	// OnDegraded fires when the retry policy gives up.
	OnDegraded func(id Identity, attempts int, err error)
}

// Options configure a Device.
type Options struct {
	Blink  BlinkFrequencySource
	Retry  RetryPolicy
	Groups *GroupSet
	Hooks  Hooks
}

// Device owns one switch's status-mode state.
//
// State is read from the node lazily on first use and trusted afterwards;
// all changes go through SetStatusLed so the in-memory copy matches what
// was last written. Sync and writes are serialised per device by opMu and
// may wait on the node for a long time. mu only guards the state fields,
// so Snapshot never waits behind a retrying sync.
type Device struct {
	id     Identity
	gw     Gateway
	blink  BlinkFrequencySource
	retry  RetryPolicy
	groups *GroupSet
	hooks  Hooks

	opMu sync.Mutex

	// Written only while holding both opMu and mu
	mu           sync.Mutex
	synced       bool
	degraded     bool
	colors       []zwave.Color
	statusActive bool
	blinkMask    byte // bit i = LED i blinking; tracked locally on SingleLed
}

// New creates a device. The state is not read until first use.
func New(id Identity, gw Gateway, opts Options) *Device {
	if opts.Blink == nil {
		opts.Blink = fixedFrequency(5)
	}
	if opts.Groups == nil {
		opts.Groups = NewGroupSet()
	}

	return &Device{
		id:     id,
		gw:     gw,
		blink:  opts.Blink,
		retry:  opts.Retry.withDefaults(),
		groups: opts.Groups,
		hooks:  opts.Hooks,
		colors: make([]zwave.Color, id.Variant.LedCount()),
	}
}

// Identity returns the device identity.
func (d *Device) Identity() Identity { return d.id }

// Ref returns the host device handle.
func (d *Device) Ref() int { return d.id.Ref }

// LedCount returns the number of status LEDs.
func (d *Device) LedCount() int { return d.id.Variant.LedCount() }

// Groups returns the device's group set.
func (d *Device) Groups() *GroupSet { return d.groups }

// IsSynced reports whether the state has been read from the node.
func (d *Device) IsSynced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.synced
}

// IsDegraded reports whether the last sync cycle gave up.
func (d *Device) IsDegraded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.degraded
}

// SyncState reads the LED colors, the status-mode flag and (for multi-LED
// variants) the blink bitmask from the node. A synced device returns
// immediately without RPCs. On failure the whole read is retried under the
// retry policy; it returns once the read succeeds, the policy gives up
// (ErrSyncDegraded) or ctx is done.
func (d *Device) SyncState(ctx context.Context) error {
	return d.sync(ctx, false)
}

// Resync forces a fresh read even if the device is already synced.
func (d *Device) Resync(ctx context.Context) error {
	return d.sync(ctx, true)
}

func (d *Device) sync(ctx context.Context, force bool) error {
	d.opMu.Lock()
	if force {
		d.mu.Lock()
		d.synced = false
		d.mu.Unlock()
	}
	attempts, err := d.syncOp(ctx)
	snap := d.Snapshot()
	d.opMu.Unlock()

	switch {
	case attempts == 0:
		// Already synced
	case err == nil:
		d.notifySynced(snap, attempts)
	case errors.Is(err, ErrSyncDegraded):
		if d.hooks.OnDegraded != nil {
			d.hooks.OnDegraded(d.id, attempts, err)
		}
	}
	return err
}

// syncOp returns the number of read attempts made (0 if already synced).
// The caller holds opMu. An unresolved plugin protocol is returned at once:
// no later attempt can succeed.
func (d *Device) syncOp(ctx context.Context) (int, error) {
	if d.synced {
		return 0, nil
	}

	delay := d.retry.Backoff
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := d.readState(ctx)
		if err == nil {
			log.Debug().
				Str("device", d.id.Address()).
				Int("attempt", attempt).
				Int64("ms", time.Since(start).Milliseconds()).
				Msg("Device state synced")
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if errors.Is(err, zwave.ErrProtocolUnresolved) {
			return attempt, err
		}

		if d.retry.exhausted(attempt) {
			d.mu.Lock()
			d.degraded = true
			d.mu.Unlock()
			log.Error().Err(err).
				Str("device", d.id.Address()).
				Int("attempts", attempt).
				Msg("Giving up on device sync")
			return attempt, fmt.Errorf("%w: %s after %d attempts: %w", ErrSyncDegraded, d.id.Address(), attempt, err)
		}

		log.Warn().Err(err).
			Str("device", d.id.Address()).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Failed to sync device state, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
		delay = d.retry.next(delay)
	}
}

// readState performs one full read without holding mu. Nothing is
// committed unless every read succeeds.
func (d *Device) readState(ctx context.Context) error {
	home, node := d.id.HomeID, d.id.NodeID

	colors := make([]zwave.Color, d.LedCount())
	for i := range colors {
		param := zwave.LedColorParam(i)
		v, err := d.gw.Get(ctx, home, node, param)
		if err != nil {
			return err
		}
		c := zwave.Color(v)
		if v < 0 || !c.Valid() {
			log.Warn().
				Str("device", d.id.Address()).
				Int("led", i+1).
				Int("value", v).
				Msg("Node reported an unknown LED color, treating it as off")
			c = zwave.ColorOff
		}
		colors[i] = c
	}

	active, err := d.gw.Get(ctx, home, node, zwave.ParamStatusModeActive)
	if err != nil {
		return err
	}

	mask := d.blinkMask
	if d.id.Variant.HasBlinkBitmask() {
		v, err := d.gw.Get(ctx, home, node, zwave.ParamBlinkBitmask)
		if err != nil {
			return err
		}
		mask = byte(v)
	}

	// An LED that is off never blinks
	for i, c := range colors {
		if c == zwave.ColorOff {
			mask &^= 1 << i
		}
	}
	mask &= byte(1<<len(colors) - 1)

	d.mu.Lock()
	d.colors = colors
	d.statusActive = active != 0
	d.blinkMask = mask
	d.synced = true
	d.degraded = false
	d.mu.Unlock()
	return nil
}

// SetStatusLed sets one LED's color and blink. Turning an LED off also stops
// it blinking. The status-mode flag is written only when the aggregate "any
// LED lit" value changes.
func (d *Device) SetStatusLed(ctx context.Context, index int, color zwave.Color, blink bool) error {
	if !color.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidColor, uint8(color))
	}

	d.opMu.Lock()
	attempts, syncErr := d.syncOp(ctx)
	err := syncErr
	var synced Snapshot
	if syncErr == nil {
		if attempts > 0 {
			synced = d.Snapshot()
		}
		err = d.setStatusLedOp(ctx, index, color, blink)
	}
	snap := d.Snapshot()
	d.opMu.Unlock()

	freshSync := attempts > 0 && syncErr == nil
	if freshSync && d.hooks.OnSynced != nil {
		d.hooks.OnSynced(synced, attempts)
	}
	if errors.Is(syncErr, ErrSyncDegraded) && d.hooks.OnDegraded != nil {
		d.hooks.OnDegraded(d.id, attempts, syncErr)
	}
	if (freshSync || err == nil) && d.hooks.OnChange != nil {
		d.hooks.OnChange(snap)
	}
	return err
}

// setStatusLedOp writes one LED. The caller holds opMu, so the state fields
// can be read without mu; every change is committed under mu.
func (d *Device) setStatusLedOp(ctx context.Context, index int, color zwave.Color, blink bool) error {
	if index < 0 || index >= len(d.colors) {
		return fmt.Errorf("%w: LED %d on %s with %d LEDs", ErrLedOutOfRange, index+1, d.id.Address(), len(d.colors))
	}

	if color == zwave.ColorOff {
		blink = false
	}

	d.mu.Lock()
	d.colors[index] = color
	if blink {
		d.blinkMask |= 1 << index
	} else {
		d.blinkMask &^= 1 << index
	}
	d.mu.Unlock()

	home, node := d.id.HomeID, d.id.NodeID

	if err := d.gw.Set(ctx, home, node, zwave.LedColorParam(index), 1, int(color)); err != nil {
		return d.writeFailed(err)
	}

	if d.id.Variant.HasBlinkBitmask() {
		if err := d.gw.Set(ctx, home, node, zwave.ParamBlinkBitmask, 1, int(d.blinkMask)); err != nil {
			return d.writeFailed(err)
		}
	} else {
		freq := 0
		if blink {
			freq = d.blink.BlinkFrequency()
		}
		if err := d.gw.Set(ctx, home, node, zwave.ParamSingleBlinkFrequency, 1, freq); err != nil {
			return d.writeFailed(err)
		}
	}

	active := slices.ContainsFunc(d.colors, func(c zwave.Color) bool { return c != zwave.ColorOff })
	if active != d.statusActive {
		value := 0
		if active {
			value = 1
		}
		if err := d.gw.Set(ctx, home, node, zwave.ParamStatusModeActive, 1, value); err != nil {
			return d.writeFailed(err)
		}
		d.mu.Lock()
		d.statusActive = active
		d.mu.Unlock()
	}

	log.Debug().
		Str("device", d.id.Address()).
		Int("led", index+1).
		Stringer("color", color).
		Bool("blink", blink).
		Bool("status_mode", d.statusActive).
		Msg("Status LED set")
	return nil
}

// writeFailed drops the synced flag so the next access re-reads the node
// instead of trusting a half-applied in-memory state.
func (d *Device) writeFailed(err error) error {
	d.mu.Lock()
	d.synced = false
	d.mu.Unlock()
	return fmt.Errorf("failed to write status LED on %s: %w", d.id.Address(), err)
}

func (d *Device) notifySynced(snap Snapshot, attempts int) {
	if d.hooks.OnSynced != nil {
		d.hooks.OnSynced(snap, attempts)
	}
	if d.hooks.OnChange != nil {
		d.hooks.OnChange(snap)
	}
}

// LedState is one LED in a snapshot.
type LedState struct {
	Color zwave.Color `json:"color"`
	Blink bool        `json:"blink"`
}

// Snapshot is a copy of a device's state.
type Snapshot struct {
	Ref              int        `json:"ref"`
	HomeID           string     `json:"home_id"`
	NodeID           byte       `json:"node_id"`
	Variant          string     `json:"variant"`
	Name             string     `json:"name"`
	Leds             []LedState `json:"leds"`
	StatusModeActive bool       `json:"status_mode_active"`
	Synced           bool       `json:"synced"`
	Degraded         bool       `json:"degraded"`
	Groups           []string   `json:"groups"`
}

// Snapshot returns a copy of the current state.
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Device) snapshotLocked() Snapshot {
	leds := make([]LedState, len(d.colors))
	for i, c := range d.colors {
		leds[i] = LedState{Color: c, Blink: d.blinkMask&(1<<i) != 0}
	}
	return Snapshot{
		Ref:              d.id.Ref,
		HomeID:           d.id.HomeID,
		NodeID:           d.id.NodeID,
		Variant:          d.id.Variant.String(),
		Name:             d.id.Name,
		Leds:             leds,
		StatusModeActive: d.statusActive,
		Synced:           d.synced,
		Degraded:         d.degraded,
		Groups:           d.groups.Names(),
	}
}
