package animator

import (
	"sync"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/pkg/errors"
)

// Fingerprint summarizes the inputs a derived value was computed from.
type Fingerprint uint64

// FingerprintOf hashes deps. Equal inputs give equal fingerprints.
func FingerprintOf(deps ...any) (Fingerprint, error) {
	h, err := hashstructure.Hash(deps, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, errors.Wrap(err, "cannot fingerprint dependencies")
	}
	return Fingerprint(h), nil
}

type cacheEntry[V any] struct {
	deps    Fingerprint
	version uint64
	value   V
	stale   bool
}

// DerivedCache memoizes values per key and recomputes one only when the fingerprint of its
// dependencies changes. Every recomputation bumps the entry's version.
type DerivedCache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]cacheEntry[V]
	hits    uint64
	misses  uint64
}

// NewDerivedCache returns an empty cache.
func NewDerivedCache[K comparable, V any]() *DerivedCache[K, V] {
	return &DerivedCache[K, V]{entries: map[K]cacheEntry[V]{}}
}

// Get returns the cached value for key if it was computed from deps, otherwise it calls compute
// and stores the result. Failed computations are not cached.
func (c *DerivedCache[K, V]) Get(key K, deps Fingerprint, compute func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && !entry.stale && entry.deps == deps {
		c.hits++
		return entry.value, nil
	}
	c.misses++
	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	c.entries[key] = cacheEntry[V]{deps: deps, version: entry.version + 1, value: v}
	return v, nil
}

// Version is the number of times the value for key has been computed.
func (c *DerivedCache[K, V]) Version(key K) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key].version
}

// Invalidate forces the next Get for key to recompute.
func (c *DerivedCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		entry.stale = true
		c.entries[key] = entry
	}
}

// Stats returns the number of hits and misses so far.
func (c *DerivedCache[K, V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
