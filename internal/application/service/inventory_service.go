package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/entity"
)

// Cache lookup outcomes reported to metrics
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// InventoryService is a read-through cache over ERP stock data
type InventoryService interface {
	GetItem(ctx context.Context, sku string) (*entity.InventoryItem, error)
	Invalidate(ctx context.Context, sku string) error
	InvalidateAll(ctx context.Context) error
}

type inventoryServiceImpl struct {
	source port.InventorySource
	cache  port.InventoryCache
	ttl    time.Duration
	opts   options
	logger Logger
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(source port.InventorySource, cache port.InventoryCache, ttl time.Duration, logger Logger, opts ...Option) InventoryService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &inventoryServiceImpl{
		source: source,
		cache:  cache,
		ttl:    ttl,
		opts:   newOptions(opts),
		logger: logger,
	}
}

// NormalizeSKU trims and upper-cases a SKU
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// GetItem returns the cached item or loads it from the ERP.
// Unknown SKUs are not cached.
func (s *inventoryServiceImpl) GetItem(ctx context.Context, sku string) (*entity.InventoryItem, error) {
	sku = NormalizeSKU(sku)
	if sku == "" {
		return nil, fmt.Errorf("%w: sku is required", entity.ErrValidation)
	}

	item, ok, err := s.cache.Get(ctx, sku)
	switch {
	case err != nil:
		s.opts.metrics.InventoryCacheLookup(CacheError)
		s.logger.Error("Inventory cache read failed, falling back to ERP", "sku", sku, "error", err)
	case ok:
		s.opts.metrics.InventoryCacheLookup(CacheHit)
		return item, nil
	default:
		s.opts.metrics.InventoryCacheLookup(CacheMiss)
	}

	item, err = s.source.GetItem(ctx, sku)
	if err != nil {
		s.logger.Error("Failed to load inventory from ERP", "sku", sku, "error", err)
		return nil, fmt.Errorf("load inventory %s: %w", sku, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: sku %s", entity.ErrNotFound, sku)
	}
	if item.RefreshedAt.IsZero() {
		item.RefreshedAt = s.opts.now()
	}

	if err := s.cache.Set(ctx, item, s.ttl); err != nil {
		s.logger.Error("Failed to cache inventory item", "sku", sku, "error", err)
	}

	return item, nil
}

// Invalidate drops one SKU from the cache
func (s *inventoryServiceImpl) Invalidate(ctx context.Context, sku string) error {
	sku = NormalizeSKU(sku)
	if sku == "" {
		return fmt.Errorf("%w: sku is required", entity.ErrValidation)
	}
	if err := s.cache.Delete(ctx, sku); err != nil {
		return fmt.Errorf("invalidate %s: %w", sku, err)
	}
	s.logger.Info("Inventory cache entry invalidated", "sku", sku)
	return nil
}

// InvalidateAll empties the cache
func (s *inventoryServiceImpl) InvalidateAll(ctx context.Context) error {
	if err := s.cache.Purge(ctx); err != nil {
		return fmt.Errorf("purge inventory cache: %w", err)
	}
	s.logger.Info("Inventory cache purged")
	return nil
}
