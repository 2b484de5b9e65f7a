package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/wxstatusd/internal/kv"
	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

func hostFixture() *fakeHost {
	return &fakeHost{devices: []zwave.HostDevice{
		{Ref: 10, Interface: "Z-Wave", Address: "E7A1B2C3-5", ManufacturerID: 12, ProductType: 0x4447, ProductID: 0x3036, Name: "Dimmer", Location: "Kitchen"},
		{Ref: 11, Interface: "Z-Wave", Address: "E7A1B2C3-6", ManufacturerID: 12, ProductType: 0x4447, ProductID: 0x3035, Name: "Switch", Location: "Hall"},
		{Ref: 12, Interface: "Z-Wave", Address: "E7A1B2C3-7", ManufacturerID: 12, ProductType: 0x0203, ProductID: 0x0001, Name: "Fan", Location: "Bedroom"},
		{Ref: 13, Interface: "Z-Wave", Address: "E7A1B2C3-8", ManufacturerID: 134, ProductType: 0x0003, ProductID: 0x0060, Name: "Sensor"},
		{Ref: 14, Interface: "Virtual", Address: "virtual-1", ManufacturerID: 12, ProductType: 0x4447, ProductID: 0x3036, Name: "Fake"},
		{Ref: 15, Interface: "Z-Wave", Address: "garbage", ManufacturerID: 12, ProductType: 0x4447, ProductID: 0x3036, Name: "Broken"},
	}}
}

func newTestManager(t *testing.T, host *fakeHost, store GroupStore) (*Manager, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	m := NewManager(host, gw, ManagerOptions{Groups: store, Retry: fastRetry()})
	n, err := m.Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	return m, gw
}

func TestManager_DiscoverKeepsSupportedZWaveDevices(t *testing.T) {
	m, _ := newTestManager(t, hostFixture(), nil)

	refs := []int{}
	for _, d := range m.All() {
		refs = append(refs, d.Ref())
	}
	assert.Equal(t, []int{10, 11, 12}, refs)

	d, err := m.Device(11)
	require.NoError(t, err)
	assert.Equal(t, zwave.SingleLed, d.Identity().Variant)
	assert.Equal(t, byte(6), d.Identity().NodeID)
	assert.Equal(t, "Hall Switch", d.Identity().Name)

	assert.True(t, m.HasDevice(12))
	assert.False(t, m.HasDevice(13))
	assert.False(t, m.HasDevice(14))
}

func TestManager_RediscoveryKeepsDeviceState(t *testing.T) {
	host := hostFixture()
	m, _ := newTestManager(t, host, nil)

	before, err := m.Device(10)
	require.NoError(t, err)
	require.NoError(t, before.SyncState(context.Background()))

	_, err = m.Discover(context.Background())
	require.NoError(t, err)

	after, err := m.Device(10)
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.True(t, after.IsSynced())
}

func TestManager_Collection(t *testing.T) {
	m, _ := newTestManager(t, hostFixture(), nil)
	require.NoError(t, m.AddToGroup(10, "downstairs"))
	require.NoError(t, m.AddToGroup(11, "downstairs"))
	require.NoError(t, m.AddToGroup(12, "upstairs"))

	tests := []struct {
		filter  string
		want    []int
		wantErr error
	}{
		{FilterAll, []int{10, 11, 12}, nil},
		{GroupFilter("downstairs"), []int{10, 11}, nil},
		{"_upstairs", []int{12}, nil},
		{"_nobody", nil, nil},
		{"12", []int{12}, nil},
		{" 10 ", []int{10}, nil},
		{"13", nil, ErrUnknownDevice},
		{"kitchen", nil, ErrBadFilter},
		{"", nil, ErrBadFilter},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			c, err := m.Collection(tt.filter)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			var refs []int
			for _, d := range c.Devices() {
				refs = append(refs, d.Ref())
			}
			assert.Equal(t, tt.want, refs)
		})
	}
}

func TestManager_DevicesResolvesNamesAndSuffixesDuplicates(t *testing.T) {
	host := hostFixture()
	host.names = map[int]string{10: "Lights", 11: "Lights"}
	m, _ := newTestManager(t, host, nil)

	devices := m.Devices(context.Background())
	require.Len(t, devices, 3)

	assert.Equal(t, 10, devices["Lights (#10)"].Ref())
	assert.Equal(t, 11, devices["Lights (#11)"].Ref())
	assert.Equal(t, 12, devices["Bedroom Fan"].Ref())
}

func TestManager_Groups(t *testing.T) {
	m, _ := newTestManager(t, hostFixture(), nil)
	assert.Empty(t, m.Groups())

	require.NoError(t, m.AddToGroup(12, "zeta"))
	require.NoError(t, m.AddToGroup(10, "alpha"))
	require.NoError(t, m.AddToGroup(11, "zeta"))
	require.NoError(t, m.AddToGroup(11, "alpha"))
	assert.Equal(t, []string{"alpha", "zeta"}, m.Groups())

	require.NoError(t, m.RemoveFromGroup(12, "zeta"))
	require.NoError(t, m.RemoveFromGroup(11, "zeta"))
	require.NoError(t, m.RemoveFromGroup(11, "missing"))
	assert.Equal(t, []string{"alpha"}, m.Groups())
}

func TestManager_GroupValidation(t *testing.T) {
	m, _ := newTestManager(t, hostFixture(), nil)

	assert.ErrorIs(t, m.AddToGroup(10, ""), ErrBadGroupName)
	assert.ErrorIs(t, m.AddToGroup(10, "  "), ErrBadGroupName)
	assert.ErrorIs(t, m.AddToGroup(10, "_all"), ErrBadGroupName)
	assert.ErrorIs(t, m.AddToGroup(99, "kitchen"), ErrUnknownDevice)
	assert.ErrorIs(t, m.RemoveFromGroup(99, "kitchen"), ErrUnknownDevice)
}

func TestManager_GroupsArePersisted(t *testing.T) {
	buckets := kv.NewManager(nil)
	store := NewKVGroupStore(buckets)
	host := hostFixture()

	m, _ := newTestManager(t, host, store)
	require.NoError(t, m.AddToGroup(10, "kitchen"))
	require.NoError(t, m.AddToGroup(10, "accent"))
	require.NoError(t, m.AddToGroup(10, "evening"))
	require.NoError(t, m.RemoveFromGroup(10, "accent"))

	names, err := store.Load("E7A1B2C3", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"kitchen", "evening"}, names)

	// A fresh manager over the same store sees the membership
	m2, _ := newTestManager(t, host, store)
	c, err := m2.Collection(GroupFilter("evening"))
	require.NoError(t, err)
	assert.True(t, c.ContainsDevice(10))
	assert.Equal(t, 1, c.Len())
}

func TestManager_Sweep(t *testing.T) {
	m, gw := newTestManager(t, hostFixture(), nil)
	ctx := context.Background()

	stats := m.Sweep(ctx, 0, false)
	assert.Equal(t, 3, stats.Devices)
	assert.Zero(t, stats.Failed)
	for _, d := range m.All() {
		assert.True(t, d.IsSynced())
	}

	// 7+1+1 for the dimmer, 1+1 for the switch, 4+1+1 for the fan
	assert.Equal(t, 17, gw.getCount())

	m.Sweep(ctx, 0, false)
	assert.Equal(t, 17, gw.getCount(), "synced devices are not re-read")

	m.Sweep(ctx, 0, true)
	assert.Equal(t, 34, gw.getCount(), "forced sweep re-reads")
}

func TestManager_SweepAbandonedOnUnresolvedProtocol(t *testing.T) {
	host := hostFixture()
	host.version = "5.0.0.0"
	gw := zwave.NewGateway(host, zwave.GatewayConfig{}, nil)
	m := NewManager(host, gw, ManagerOptions{Retry: RetryPolicy{Backoff: 50 * time.Millisecond, Multiplier: 1}})
	n, err := m.Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stats := m.Sweep(ctx, 0, false)
	assert.NoError(t, ctx.Err())
	assert.Equal(t, 3, stats.Devices)
	assert.Equal(t, 1, stats.Failed)
	for _, d := range m.All() {
		assert.False(t, d.IsSynced())
	}
}

func TestManager_SweepStopsOnCancel(t *testing.T) {
	m, gw := newTestManager(t, hostFixture(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m.RunSweeps(ctx, SweepConfig{InitialDelay: 0})
	assert.Zero(t, gw.getCount())
}

func TestGroupSet(t *testing.T) {
	g := NewGroupSet("b", "a", "b")
	assert.Equal(t, []string{"b", "a"}, g.Names())

	assert.False(t, g.Add("a"))
	assert.True(t, g.Add("c"))
	assert.True(t, g.Remove("b"))
	assert.False(t, g.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, g.Names())
	assert.True(t, g.Has("c"))
}

func TestGroupBucketName(t *testing.T) {
	assert.Equal(t, "groups_e7a1b2c3_5", GroupBucketName("E7A1B2C3", 5))
}
