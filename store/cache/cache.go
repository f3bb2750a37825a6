// Package cache provides a TTL-bounded in-memory cache used by the store layer.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config contains cache settings.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	MaxItems        int
	OnEviction      func(key string, value any)
}

type item struct {
	expiresAt time.Time
	element   *list.Element
	key       string
	value     any
}

// Cache is a thread-safe cache with TTL expiry and LRU eviction at capacity.
type Cache struct {
	config Config
	items  map[string]*item
	order  *list.List
	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// New creates a cache and starts its background cleanup loop.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}

	c := &Cache{
		config: config,
		items:  make(map[string]*item),
		order:  list.New(),
		done:   make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a value. Returns false on miss or expiry.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(it.expiresAt) {
		c.removeLocked(it)
		return nil, false
	}
	c.order.MoveToFront(it.element)
	return it.value, true
}

// Set stores a value with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.config.DefaultTTL)
}

// SetWithTTL stores a value with an explicit TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok {
		it.value = value
		it.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(it.element)
		return
	}

	for len(c.items) >= c.config.MaxItems {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*item))
	}

	it := &item{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	it.element = c.order.PushFront(it)
	c.items[key] = it
}

// Delete removes a key. Returns true if the key was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok {
		c.removeLocked(it)
		return true
	}
	return false
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*item)
	c.order.Init()
}

// Size returns the number of live entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close stops the cleanup loop.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// removeLocked must be called with the lock held.
func (c *Cache) removeLocked(it *item) {
	c.order.Remove(it.element)
	delete(c.items, it.key)
	if c.config.OnEviction != nil {
		c.config.OnEviction(it.key, it.value)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			var expired []*item
			for _, it := range c.items {
				if now.After(it.expiresAt) {
					expired = append(expired, it)
				}
			}
			for _, it := range expired {
				c.removeLocked(it)
			}
			c.mu.Unlock()
		}
	}
}
