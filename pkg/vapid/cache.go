package vapid

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// TokenCache stores signed tokens by key. Implementations must be safe for
// concurrent use and treat every failure as a miss.
type TokenCache interface {
	Get(ctx context.Context, key string) (Token, bool)
	Set(ctx context.Context, key string, token Token)
}

type cacheEntry struct {
	key   string
	token Token
}

// MemoryCache is an in-process LRU of tokens. Entries past their expiry are
// dropped on read.
type MemoryCache struct {
	capacity int
	items    map[string]*list.Element
	order    *list.List
	now      func() time.Time
	mu       sync.Mutex
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithCacheClock overrides the time source used to expire entries.
func WithCacheClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemoryCache creates a cache holding at most capacity tokens.
// A non-positive capacity panics.
func NewMemoryCache(capacity int, opts ...MemoryCacheOption) *MemoryCache {
	if capacity <= 0 {
		panic("vapid: token cache capacity must be positive")
	}
	c := &MemoryCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the token stored under key and marks it recently used.
func (c *MemoryCache) Get(_ context.Context, key string) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return Token{}, false
	}
	entry := elem.Value.(*cacheEntry)
	if !c.now().Before(entry.token.ExpiresAt) {
		c.remove(elem)
		return Token{}, false
	}
	c.order.MoveToFront(elem)
	return entry.token, true
}

// Set stores token under key, evicting the least recently used entry when full.
func (c *MemoryCache) Set(_ context.Context, key string, token Token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).token = token
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&cacheEntry{key: key, token: token})
	if c.order.Len() > c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
}

// Len returns the number of stored tokens, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Must be called with lock held.
func (c *MemoryCache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}
