package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

// Collection filter tokens.
const (
	FilterAll   = "__all"
	GroupPrefix = "_"
)

var (
	// ErrBadFilter is returned for filters that are neither a token nor a device handle.
	ErrBadFilter = errors.New("invalid device filter")

	// ErrUnknownDevice is returned for device handles that were not discovered.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrBadGroupName is returned for empty names or names that would clash
	// with filter tokens.
	ErrBadGroupName = errors.New("invalid group name")
)

// GroupFilter returns the collection filter selecting every member of group.
func GroupFilter(group string) string {
	return GroupPrefix + group
}

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	Groups GroupStore // nil keeps groups in memory only
	Blink  BlinkFrequencySource
	Retry  RetryPolicy
	Hooks  Hooks
}

// Manager discovers devices through the host and answers the command
// surface: device listing, collections by filter and group membership.
type Manager struct {
	host  zwave.Host
	gw    Gateway
	store GroupStore
	opts  ManagerOptions

	mu      sync.RWMutex
	devices []*Device
	byRef   map[int]*Device
}

// NewManager creates a manager with no devices; call Discover.
func NewManager(host zwave.Host, gw Gateway, opts ManagerOptions) *Manager {
	return &Manager{
		host:  host,
		gw:    gw,
		store: opts.Groups,
		opts:  opts,
		byRef: make(map[int]*Device),
	}
}

// Discover enumerates host devices and keeps the supported Z-Wave ones.
// Devices already known by handle are kept, so their synced state survives
// a rediscovery.
func (m *Manager) Discover(ctx context.Context) (int, error) {
	hostDevices, err := m.host.Devices(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate host devices: %w", err)
	}

	m.mu.RLock()
	known := m.byRef
	m.mu.RUnlock()

	var (
		devices []*Device
		skipped int
	)
	for _, hd := range hostDevices {
		if hd.Interface != zwave.InterfaceZWave {
			continue
		}
		variant, err := zwave.Classify(hd.ManufacturerID, hd.ProductType, hd.ProductID)
		if err != nil {
			skipped++
			continue
		}

		if d, ok := known[hd.Ref]; ok {
			devices = append(devices, d)
			continue
		}

		home, node, err := zwave.ParseAddress(hd.Address)
		if err != nil {
			log.Warn().Err(err).Int("ref", hd.Ref).Msg("Skipping device with unparseable address")
			continue
		}

		groups := NewGroupSet()
		if m.store != nil {
			names, err := m.store.Load(home, node)
			if err != nil {
				return 0, err
			}
			groups = NewGroupSet(names...)
		}

		id := Identity{HomeID: home, NodeID: node, Variant: variant, Name: hd.DisplayName(), Ref: hd.Ref}
		devices = append(devices, New(id, m.gw, Options{
			Blink:  m.opts.Blink,
			Retry:  m.opts.Retry,
			Groups: groups,
			Hooks:  m.opts.Hooks,
		}))

		log.Debug().
			Stringer("device", id).
			Str("name", id.Name).
			Strs("groups", groups.Names()).
			Msg("Discovered device")
	}

	byRef := make(map[int]*Device, len(devices))
	for _, d := range devices {
		byRef[d.Ref()] = d
	}

	m.mu.Lock()
	m.devices = devices
	m.byRef = byRef
	m.mu.Unlock()

	log.Info().
		Int("devices", len(devices)).
		Int("unsupported", skipped).
		Int("host_devices", len(hostDevices)).
		Msg("Device discovery complete")
	return len(devices), nil
}

// All returns every discovered device in discovery order.
func (m *Manager) All() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.devices)
}

// Device returns a device by host handle.
func (m *Manager) Device(ref int) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.byRef[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDevice, ref)
	}
	return d, nil
}

// HasDevice reports whether ref is a discovered device.
func (m *Manager) HasDevice(ref int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byRef[ref]
	return ok
}

// Devices maps current display names to devices. Names are resolved from
// the host on every call; a name shared by several devices gets a
// " (#<ref>)" suffix on each of them.
func (m *Manager) Devices(ctx context.Context) map[string]*Device {
	all := m.All()

	names := make([]string, len(all))
	counts := make(map[string]int, len(all))
	for i, d := range all {
		name := d.Identity().Name
		if hd, err := m.host.Device(ctx, d.Ref()); err == nil && hd.DisplayName() != "" {
			name = hd.DisplayName()
		} else if err != nil {
			log.Debug().Err(err).Int("ref", d.Ref()).Msg("Using discovery-time device name")
		}
		if name == "" {
			name = "Node " + strconv.Itoa(int(d.Identity().NodeID))
		}
		names[i] = name
		counts[name]++
	}

	out := make(map[string]*Device, len(all))
	for i, d := range all {
		name := names[i]
		if counts[name] > 1 {
			name = fmt.Sprintf("%s (#%d)", name, d.Ref())
		}
		out[name] = d
	}
	return out
}

// Collection resolves a filter: FilterAll, GroupPrefix+name, or a decimal
// device handle.
func (m *Manager) Collection(filter string) (*Collection, error) {
	filter = strings.TrimSpace(filter)

	switch {
	case filter == FilterAll:
		return NewCollection(m.All()...), nil

	case strings.HasPrefix(filter, GroupPrefix):
		group := strings.TrimPrefix(filter, GroupPrefix)
		var members []*Device
		for _, d := range m.All() {
			if d.Groups().Has(group) {
				members = append(members, d)
			}
		}
		return NewCollection(members...), nil

	default:
		ref, err := strconv.Atoi(filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadFilter, filter)
		}
		d, err := m.Device(ref)
		if err != nil {
			return nil, err
		}
		return NewCollection(d), nil
	}
}

// Groups returns the sorted distinct group names across all devices.
func (m *Manager) Groups() []string {
	var names []string
	for _, d := range m.All() {
		for _, g := range d.Groups().Names() {
			if !slices.Contains(names, g) {
				names = append(names, g)
			}
		}
	}
	slices.Sort(names)
	return names
}

// AddToGroup adds the device to group and persists its membership.
func (m *Manager) AddToGroup(ref int, group string) error {
	if err := validateGroupName(group); err != nil {
		return err
	}
	d, err := m.Device(ref)
	if err != nil {
		return err
	}
	if !d.Groups().Add(group) {
		return nil
	}
	log.Info().Int("ref", ref).Str("group", group).Msg("Device added to group")
	return m.saveGroups(d)
}

// RemoveFromGroup removes the device from group and persists its membership.
func (m *Manager) RemoveFromGroup(ref int, group string) error {
	d, err := m.Device(ref)
	if err != nil {
		return err
	}
	if !d.Groups().Remove(group) {
		return nil
	}
	log.Info().Int("ref", ref).Str("group", group).Msg("Device removed from group")
	return m.saveGroups(d)
}

func (m *Manager) saveGroups(d *Device) error {
	if m.store == nil {
		return nil
	}
	id := d.Identity()
	return m.store.Save(id.HomeID, id.NodeID, d.Groups().Names())
}

func validateGroupName(group string) error {
	if strings.TrimSpace(group) == "" || strings.HasPrefix(group, GroupPrefix) {
		return fmt.Errorf("%w: %q", ErrBadGroupName, group)
	}
	return nil
}
