package cache

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/entity"
)

type memoryEntry struct {
	item      entity.InventoryItem
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty cache. A nil clock uses time.Now.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// Get returns a copy of a live entry. Expired entries are dropped on read.
func (c *MemoryCache) Get(ctx context.Context, sku string) (*entity.InventoryItem, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[sku]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[sku]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, sku)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	item := e.item
	return &item, true, nil
}

// Set stores a copy of item until now+ttl
func (c *MemoryCache) Set(ctx context.Context, item *entity.InventoryItem, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[item.SKU] = memoryEntry{item: *item, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, sku string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sku)
	return nil
}

func (c *MemoryCache) Purge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}

// Len returns the number of stored entries, expired or not
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ port.InventoryCache = (*MemoryCache)(nil)
