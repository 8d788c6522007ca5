package bpe

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache memoizes merge results keyed by byte-encoded span.
// Implementations must be safe for concurrent use. Values are treated as
// read-only by both the cache and its callers.
type Cache interface {
	Get(span string) ([]string, bool)
	Add(span string, symbols []string)
	Len() int
}

// NewCache picks an implementation from a capacity setting:
// 0 is unbounded, a positive size is an LRU of that size, negative disables caching.
func NewCache(size int) (Cache, error) {
	switch {
	case size == 0:
		return NewUnboundedCache(), nil
	case size > 0:
		return NewLRUCache(size)
	default:
		return NopCache{}, nil
	}
}

// UnboundedCache never evicts. Memory grows with the number of distinct spans seen.
type UnboundedCache struct {
	mu sync.RWMutex
	m  map[string][]string
}

// NewUnboundedCache returns an empty UnboundedCache.
func NewUnboundedCache() *UnboundedCache {
	return &UnboundedCache{m: make(map[string][]string)}
}

func (c *UnboundedCache) Get(span string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[span]
	return v, ok
}

func (c *UnboundedCache) Add(span string, symbols []string) {
	c.mu.Lock()
	c.m[span] = symbols
	c.mu.Unlock()
}

func (c *UnboundedCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// LRUCache keeps at most size entries, evicting the least recently used.
type LRUCache struct {
	c *lru.Cache[string, []string]
}

// NewLRUCache returns an LRUCache holding up to size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	c, err := lru.New[string, []string](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUCache{c: c}, nil
}

func (c *LRUCache) Get(span string) ([]string, bool) { return c.c.Get(span) }

func (c *LRUCache) Add(span string, symbols []string) { c.c.Add(span, symbols) }

func (c *LRUCache) Len() int { return c.c.Len() }

// NopCache stores nothing.
type NopCache struct{}

func (NopCache) Get(string) ([]string, bool) { return nil, false }

func (NopCache) Add(string, []string) {}

func (NopCache) Len() int { return 0 }
