package store

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// Cache is a concurrency-safe LRU of dataset descriptors keyed by data ID.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

// NewCache creates a cache holding up to size descriptors. A size of zero
// disables caching.
func NewCache(size int) *Cache {
	if size <= 0 {
		return &Cache{}
	}
	return &Cache{lru: lru.New(size)}
}

// Get returns the cached descriptor for dataID.
func (c *Cache) Get(dataID string) (*DatasetDescriptor, bool) {
	if c == nil || c.lru == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(dataID)
	if !ok {
		return nil, false
	}
	return v.(*DatasetDescriptor), true
}

// Add stores d under its data ID.
func (c *Cache) Add(d *DatasetDescriptor) {
	if c == nil || c.lru == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(d.DataID, d)
}

// Len returns the number of cached descriptors.
func (c *Cache) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
