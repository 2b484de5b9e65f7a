package device

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dokzlo13/wxstatusd/internal/kv"
)

// GroupSet is an insertion-ordered set of distinct group names.
type GroupSet struct {
	mu    sync.RWMutex
	names []string
}

// NewGroupSet creates a set from names, dropping duplicates.
func NewGroupSet(names ...string) *GroupSet {
	g := &GroupSet{}
	for _, n := range names {
		g.Add(n)
	}
	return g
}

// Add inserts name and reports whether it was new.
func (g *GroupSet) Add(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if slices.Contains(g.names, name) {
		return false
	}
	g.names = append(g.names, name)
	return true
}

// Remove deletes name and reports whether it was present.
func (g *GroupSet) Remove(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	i := slices.Index(g.names, name)
	if i < 0 {
		return false
	}
	g.names = slices.Delete(g.names, i, i+1)
	return true
}

// Has reports membership.
func (g *GroupSet) Has(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Contains(g.names, name)
}

// Names returns the names in insertion order.
func (g *GroupSet) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.names)
}

// GroupStore persists group membership per device address.
type GroupStore interface {
	Load(home string, node byte) ([]string, error)
	Save(home string, node byte, names []string) error
}

// KVGroupStore keeps each device's groups in its own kv bucket: one key per
// group name with value true.
type KVGroupStore struct {
	buckets *kv.Manager
}

// NewKVGroupStore creates a group store over a bucket manager.
func NewKVGroupStore(buckets *kv.Manager) *KVGroupStore {
	return &KVGroupStore{buckets: buckets}
}

// GroupBucketName returns the bucket holding a device's groups.
func GroupBucketName(home string, node byte) string {
	return fmt.Sprintf("groups_%s_%d", strings.ToLower(home), node)
}

// Load returns the device's groups in the order they were saved.
func (s *KVGroupStore) Load(home string, node byte) ([]string, error) {
	bucket := s.buckets.Bucket(GroupBucketName(home, node))

	keys, err := bucket.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to load groups for %s-%d: %w", home, node, err)
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		var member bool
		if ok, err := bucket.Load(key, &member); err != nil {
			return nil, fmt.Errorf("failed to load group %q for %s-%d: %w", key, home, node, err)
		} else if ok && member {
			names = append(names, key)
		}
	}
	return names, nil
}

// Save replaces the device's groups.
func (s *KVGroupStore) Save(home string, node byte, names []string) error {
	bucket := s.buckets.Bucket(GroupBucketName(home, node))

	if err := bucket.Clear(); err != nil {
		return fmt.Errorf("failed to save groups for %s-%d: %w", home, node, err)
	}
	for _, name := range names {
		if err := bucket.Put(name, true); err != nil {
			return fmt.Errorf("failed to save groups for %s-%d: %w", home, node, err)
		}
	}
	return nil
}
