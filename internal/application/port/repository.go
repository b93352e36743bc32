package port

import (
	"context"

	"github.com/garyjia/uxone/internal/domain/entity"
)

// AggregateRepository defines persistence operations for WorkflowAggregate.
// Lookups return nil, nil when no row matches.
type AggregateRepository interface {
	Create(ctx context.Context, agg *entity.WorkflowAggregate) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowAggregate, error)
	GetByCode(ctx context.Context, code string) (*entity.WorkflowAggregate, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filter entity.AggregateFilter) ([]*entity.WorkflowAggregate, error)

	// UpdateDecision persists log, status and release fields when the stored row
	// still has expectedVersion and is not released. It bumps agg.Version on success
	// and returns entity.ErrVersionConflict when no row matched.
	UpdateDecision(ctx context.Context, agg *entity.WorkflowAggregate, expectedVersion int64) error
}

// SequenceRepository defines the atomic counter used by identifier families
type SequenceRepository interface {
	// Increment atomically creates or bumps the (family, bucket) counter and
	// returns the value this caller now owns.
	Increment(ctx context.Context, family, bucketKey string) (int64, error)

	// Current returns the last allocated counter, or 0 when the bucket is unused
	Current(ctx context.Context, family, bucketKey string) (int64, error)

	// ListByFamily returns the most recent buckets of a family, newest first
	ListByFamily(ctx context.Context, family string, limit int) ([]*entity.SequenceCounter, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByID(ctx context.Context, id int64) (*entity.Notification, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errorMsg string) error
	ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error)
	ListByRecipient(ctx context.Context, userID string, limit, offset int) ([]*entity.Notification, error)
}

// UserRepository reads the user directory
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*entity.User, error)
	GetByLarkOpenID(ctx context.Context, openID string) (*entity.User, error)
	ListDepartmentHeads(ctx context.Context, departments []entity.Department) ([]*entity.User, error)
	Upsert(ctx context.Context, user *entity.User) error
}

// SystemConfigRepository reads and writes stored configuration values
type SystemConfigRepository interface {
	Get(ctx context.Context, key string) (*entity.SystemConfig, error)
	Set(ctx context.Context, key, value, description string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IdentifierLookup reports whether an owning table already holds a generated identifier
type IdentifierLookup interface {
	ExistsByCode(ctx context.Context, code string) (bool, error)
}
