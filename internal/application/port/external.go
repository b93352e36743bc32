package port

import (
	"context"
	"time"

	"github.com/garyjia/uxone/internal/domain/entity"
)

// LarkMessageSender defines message sending operations
type LarkMessageSender interface {
	SendMessage(ctx context.Context, openID string, content string) error
	SendCardMessage(ctx context.Context, openID string, cardContent interface{}) error
}

// InventorySource reads stock snapshots from the ERP.
// GetItem returns nil, nil when the SKU is unknown.
type InventorySource interface {
	GetItem(ctx context.Context, sku string) (*entity.InventoryItem, error)
}

// InventoryCache stores inventory snapshots with an expiry
type InventoryCache interface {
	Get(ctx context.Context, sku string) (*entity.InventoryItem, bool, error)
	Set(ctx context.Context, item *entity.InventoryItem, ttl time.Duration) error
	Delete(ctx context.Context, sku string) error
	Purge(ctx context.Context) error
}

// ApprovalLogWriter renders an aggregate's approval log as a document
type ApprovalLogWriter interface {
	Write(agg *entity.WorkflowAggregate) ([]byte, error)
	ContentType() string
	Extension() string
}
