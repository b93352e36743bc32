package erp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/entity"
)

// DefaultInventoryView is the ERP relation exposing per-SKU stock
const DefaultInventoryView = "inventory_snapshot_v"

// Config holds ERP connection settings
type Config struct {
	DSN          string
	View         string
	QueryTimeout time.Duration
	MaxOpenConns int
}

// InventoryReader implements port.InventorySource over the ERP database
type InventoryReader struct {
	db      *sql.DB
	query   string
	timeout time.Duration
	logger  *zap.Logger
}

// Open connects to the ERP Postgres database
func Open(cfg Config, logger *zap.Logger) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("erp dsn is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open erp database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping erp database: %w", err)
	}

	logger.Info("ERP connection established")
	return db, nil
}

// NewInventoryReader creates a reader over the configured view
func NewInventoryReader(db *sql.DB, cfg Config, logger *zap.Logger) *InventoryReader {
	view := cfg.View
	if view == "" {
		view = DefaultInventoryView
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &InventoryReader{
		db:      db,
		query:   buildItemQuery(view),
		timeout: timeout,
		logger:  logger,
	}
}

// buildItemQuery quotes each part of a possibly schema-qualified view name
func buildItemQuery(view string) string {
	parts := strings.Split(view, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return `SELECT sku, description, warehouse, on_hand, reserved, unit, refreshed_at
		FROM ` + strings.Join(parts, ".") + `
		WHERE sku = $1`
}

// GetItem loads one SKU, returning nil when the ERP does not know it
func (r *InventoryReader) GetItem(ctx context.Context, sku string) (*entity.InventoryItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		item        entity.InventoryItem
		description sql.NullString
		unit        sql.NullString
		refreshedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, r.query, sku).Scan(
		&item.SKU,
		&description,
		&item.Warehouse,
		&item.OnHand,
		&item.Reserved,
		&unit,
		&refreshedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to query ERP inventory", zap.String("sku", sku), zap.Error(err))
		return nil, describeError(err)
	}

	item.Description = description.String
	item.Unit = unit.String
	if refreshedAt.Valid {
		item.RefreshedAt = refreshedAt.Time.UTC()
	}
	return &item, nil
}

// describeError adds the Postgres condition name when the driver reports one
func describeError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("erp query failed (%s %s): %w", pqErr.Code, pqErr.Code.Name(), err)
	}
	return fmt.Errorf("erp query failed: %w", err)
}

// Verify interface compliance
var _ port.InventorySource = (*InventoryReader)(nil)
