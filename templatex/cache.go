package templatex

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// PageCache maps a key (status code, directory path) to a constructed
// Template. GetOrCreate is atomic per key: concurrent misses share a single
// construction. With a positive capacity the cache evicts least recently used
// pages; otherwise it grows without bound.
type PageCache[K comparable] struct {
	mu      sync.RWMutex
	pages   map[K]*Template
	bounded *lru.Cache[K, *Template]
	group   singleflight.Group
}

// NewPageCache constructs a cache. capacity <= 0 means unbounded.
func NewPageCache[K comparable](capacity int) *PageCache[K] {
	c := &PageCache[K]{}
	if capacity > 0 {
		// lru.New only fails for non-positive sizes.
		c.bounded, _ = lru.New[K, *Template](capacity)
	}
	if c.bounded == nil {
		c.pages = make(map[K]*Template)
	}
	return c
}

// Get returns the cached template for key.
func (c *PageCache[K]) Get(key K) (*Template, bool) {
	if c.bounded != nil {
		return c.bounded.Get(key)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.pages[key]
	return t, ok
}

// Put stores t under key, replacing any previous entry.
func (c *PageCache[K]) Put(key K, t *Template) {
	if c.bounded != nil {
		c.bounded.Add(key, t)
		return
	}
	c.mu.Lock()
	c.pages[key] = t
	c.mu.Unlock()
}

// Len reports the number of cached templates.
func (c *PageCache[K]) Len() int {
	if c.bounded != nil {
		return c.bounded.Len()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages)
}

// GetOrCreate returns the cached template for key, calling build on a miss.
// A failed build is not cached.
func (c *PageCache[K]) GetOrCreate(key K, build func() (*Template, error)) (*Template, error) {
	if t, ok := c.Get(key); ok {
		return t, nil
	}
	v, err, _ := c.group.Do(fmt.Sprint(key), func() (any, error) {
		if t, ok := c.Get(key); ok {
			return t, nil
		}
		t, err := build()
		if err != nil {
			return nil, err
		}
		c.Put(key, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Template), nil
}
