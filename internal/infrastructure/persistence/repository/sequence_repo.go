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

// SequenceRepository implements port.SequenceRepository
type SequenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *sql.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Increment creates or bumps the counter in one statement and returns the new value
func (r *SequenceRepository) Increment(ctx context.Context, family, bucketKey string) (int64, error) {
	query := `
		INSERT INTO sequence_counters (family, bucket_key, counter, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (family, bucket_key)
		DO UPDATE SET counter = counter + 1, updated_at = excluded.updated_at
		RETURNING counter
	`

	now := time.Now().UTC()
	var counter int64
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, family, bucketKey, now, now).Scan(&counter)
	if err != nil {
		err = sqlite.TranslateError(err)
		r.logger.Error("Failed to increment sequence counter",
			zap.String("family", family),
			zap.String("bucket_key", bucketKey),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	return counter, nil
}

// Current returns the last allocated counter of a bucket
func (r *SequenceRepository) Current(ctx context.Context, family, bucketKey string) (int64, error) {
	query := `SELECT counter FROM sequence_counters WHERE family = ? AND bucket_key = ?`

	var counter int64
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, family, bucketKey).Scan(&counter)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", sqlite.TranslateError(err))
	}
	return counter, nil
}

// ListByFamily returns the most recent buckets of a family
func (r *SequenceRepository) ListByFamily(ctx context.Context, family string, limit int) ([]*entity.SequenceCounter, error) {
	if limit <= 0 {
		limit = 30
	}

	query := `
		SELECT family, bucket_key, counter, created_at, updated_at
		FROM sequence_counters
		WHERE family = ?
		ORDER BY bucket_key DESC
		LIMIT ?
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, family, limit)
	if err != nil {
		r.logger.Error("Failed to list sequence counters", zap.String("family", family), zap.Error(err))
		return nil, fmt.Errorf("failed to list counters: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	var counters []*entity.SequenceCounter
	for rows.Next() {
		var c entity.SequenceCounter
		if err := rows.Scan(&c.Family, &c.BucketKey, &c.Counter, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		counters = append(counters, &c)
	}

	return counters, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *SequenceRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.SequenceRepository = (*SequenceRepository)(nil)
