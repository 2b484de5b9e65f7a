package mqtt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/wxstatusd/internal/device"
)

type snapshotSink struct {
	mu  sync.Mutex
	got []device.Snapshot
}

func (s *snapshotSink) publish(snap device.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, snap)
}

func (s *snapshotSink) snapshots() []device.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]device.Snapshot(nil), s.got...)
}

func TestStateCoalescer_KeepsLatestPerDevice(t *testing.T) {
	sink := &snapshotSink{}
	c := NewStateCoalescer(20*time.Millisecond, sink.publish)
	defer c.Close()

	c.Add(device.Snapshot{HomeID: "abc", NodeID: 5, Ref: 1, StatusModeActive: false})
	c.Add(device.Snapshot{HomeID: "abc", NodeID: 5, Ref: 1, StatusModeActive: true})
	c.Add(device.Snapshot{HomeID: "abc", NodeID: 6, Ref: 2})

	assert.Eventually(t, func() bool {
		return len(sink.snapshots()) == 2
	}, time.Second, 5*time.Millisecond)

	for _, snap := range sink.snapshots() {
		if snap.Ref == 1 {
			assert.True(t, snap.StatusModeActive)
		}
	}
}

func TestStateCoalescer_ZeroQuietPublishesImmediately(t *testing.T) {
	sink := &snapshotSink{}
	c := NewStateCoalescer(0, sink.publish)

	c.Add(device.Snapshot{Ref: 1})
	c.Add(device.Snapshot{Ref: 1})

	assert.Len(t, sink.snapshots(), 2)
}

func TestStateCoalescer_CloseFlushesPending(t *testing.T) {
	sink := &snapshotSink{}
	c := NewStateCoalescer(time.Hour, sink.publish)

	c.Add(device.Snapshot{HomeID: "abc", NodeID: 5, Ref: 1})
	assert.Empty(t, sink.snapshots())

	c.Close()
	assert.Len(t, sink.snapshots(), 1)
}

func TestStateCoalescer_StaleTimerDoesNotFlushNewerState(t *testing.T) {
	sink := &snapshotSink{}
	c := NewStateCoalescer(time.Hour, sink.publish)
	defer c.Close()

	c.Add(device.Snapshot{HomeID: "abc", NodeID: 5, Ref: 1})
	c.mu.Lock()
	firstGen := c.pending["abc-5"].gen
	c.mu.Unlock()

	c.Add(device.Snapshot{HomeID: "abc", NodeID: 5, Ref: 1, StatusModeActive: true})

	// The first timer fired just before it was replaced
	c.flush("abc-5", firstGen)
	assert.Empty(t, sink.snapshots())

	c.mu.Lock()
	p, ok := c.pending["abc-5"]
	c.mu.Unlock()
	require.True(t, ok)
	assert.True(t, p.snap.StatusModeActive)
}
