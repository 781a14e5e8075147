// Package cache provides the bounded response cache that lets the relay
// skip duplicate upstream completion calls. Eviction is strictly
// insertion-ordered: a hit never refreshes an entry, so this is a FIFO
// cache, not an LRU. Entries never expire by time, only by capacity.
package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/solenne/hearth/internal/observability"
)

// DefaultCapacity is the entry bound used when none is configured.
const DefaultCapacity = 200

// Cache maps reply fingerprints to cached reply text.
//
// Cache is safe for concurrent use from multiple goroutines.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]string
	order    []string // insertion order, oldest first
}

// New returns a Cache bounded to capacity entries. Non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]string, capacity),
	}
}

// Get returns the cached reply for fingerprint, if present. Lookups do not
// reorder entries.
func (c *Cache) Get(fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, ok := c.entries[fingerprint]
	if ok {
		observability.RecordCacheHit()
	} else {
		observability.RecordCacheMiss()
	}
	return reply, ok
}

// Put stores a reply under fingerprint. Inserting a new key at capacity
// evicts exactly one entry, the least-recently-inserted. Re-putting an
// existing key overwrites its value without touching its position.
func (c *Cache) Put(fingerprint, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; exists {
		c.entries[fingerprint] = reply
		return
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[fingerprint] = reply
	c.order = append(c.order, fingerprint)
	observability.SetCacheEntries(len(c.entries))
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fingerprint derives the deterministic cache key for a session and its
// recent conversation state. recent must JSON-serialize deterministically
// (a slice of fixed-field structs does). The sampled quote set is
// deliberately not part of the key; see the response cache notes in
// DESIGN.md.
func Fingerprint(sessionID string, recent any) (string, error) {
	b, err := json.Marshal(recent)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%s:%x", sessionID, sum), nil
}
