package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jllopis/onyx/pkg/telemetry"
)

// Entry is a key/value pair of an agent's context.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Snapshot is a read-only copy of a ContextStore at a version.
type Snapshot struct {
	Version uint64  `json:"version"`
	Entries []Entry `json:"entries"`
}

// Get returns the value recorded under key.
func (s Snapshot) Get(key string) (string, bool) {
	for _, e := range s.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Format renders the snapshot as "key: value" lines with values cut to max
// runes.
func (s Snapshot) Format(max int) string {
	var b strings.Builder
	for _, e := range s.Entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Key, telemetry.Truncate(e.Value, max))
	}
	return b.String()
}

// ContextStore is the versioned key/value memory an agent carries between
// steps. Only the owning agent's loop writes to it; everyone else reads
// snapshots.
type ContextStore struct {
	mu      sync.RWMutex
	values  map[string]string
	order   []string
	version uint64
}

// NewContextStore returns an empty store.
func NewContextStore() *ContextStore {
	return &ContextStore{values: make(map[string]string)}
}

// Set records value under key and returns the new version. Keys keep their
// first insertion position.
func (c *ContextStore) Set(key, value string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; !ok {
		c.order = append(c.order, key)
	}
	c.values[key] = value
	c.version++
	return c.version
}

// Version returns the number of writes so far.
func (c *ContextStore) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Snapshot returns a copy of the current contents.
func (c *ContextStore) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := make([]Entry, len(c.order))
	for i, k := range c.order {
		entries[i] = Entry{Key: k, Value: c.values[k]}
	}
	return Snapshot{Version: c.version, Entries: entries}
}
