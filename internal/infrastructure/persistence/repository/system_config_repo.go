package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/entity"
	"github.com/garyjia/uxone/internal/infrastructure/persistence/sqlite"
)

// SystemConfigRepository implements port.SystemConfigRepository
type SystemConfigRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSystemConfigRepository creates a new system config repository
func NewSystemConfigRepository(db *sql.DB, logger *zap.Logger) port.SystemConfigRepository {
	return &SystemConfigRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns a stored value, or nil when the key is unset
func (r *SystemConfigRepository) Get(ctx context.Context, key string) (*entity.SystemConfig, error) {
	query := `
		SELECT config_key, value, description, updated_at
		FROM system_configs
		WHERE config_key = ?
	`

	var c entity.SystemConfig
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, key).Scan(&c.Key, &c.Value, &c.Description, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config %s: %w", key, sqlite.TranslateError(err))
	}
	return &c, nil
}

// Set stores a value, keeping the existing description when the new one is empty
func (r *SystemConfigRepository) Set(ctx context.Context, key, value, description string) error {
	query := `
		INSERT INTO system_configs (config_key, value, description, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (config_key) DO UPDATE SET
			value = excluded.value,
			description = CASE WHEN excluded.description = '' THEN system_configs.description ELSE excluded.description END,
			updated_at = excluded.updated_at
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query, key, value, description, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to set config", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to set config %s: %w", key, sqlite.TranslateError(err))
	}
	return nil
}

// getExecutor returns appropriate executor based on context
func (r *SystemConfigRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.SystemConfigRepository = (*SystemConfigRepository)(nil)
