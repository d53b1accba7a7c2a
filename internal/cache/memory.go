package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryIndex keeps recently seen artifacts in memory so that repeated
// lookups do not hit the database.
type MemoryIndex struct {
	cache *gocache.Cache
	ttl   time.Duration
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates a memory index. Entries expire ttl after their
// creation time; a zero ttl keeps them until deleted.
func NewMemoryIndex(ttl time.Duration, cleanupInterval time.Duration) *MemoryIndex {
	return &MemoryIndex{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
		ttl:   ttl,
	}
}

// Get returns the creation time of key
func (m *MemoryIndex) Get(key string) (time.Time, bool) {
	if val, found := m.cache.Get(key); found {
		return val.(time.Time), true
	}
	return time.Time{}, false
}

// Put stores key, expiring it when the artifact itself would expire
func (m *MemoryIndex) Put(key string, created time.Time) error {
	expiry := gocache.NoExpiration
	if m.ttl > 0 {
		expiry = time.Until(created.Add(m.ttl))
		if expiry <= 0 {
			m.cache.Delete(key)
			return nil
		}
	}
	m.cache.Set(key, created, expiry)
	return nil
}

// Delete removes key
func (m *MemoryIndex) Delete(key string) error {
	m.cache.Delete(key)
	return nil
}

// Clear removes every entry
func (m *MemoryIndex) Clear() error {
	m.cache.Flush()
	return nil
}
