package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/entity"
	"github.com/garyjia/uxone/internal/infrastructure/persistence/sqlite"
)

const aggregateColumns = `
	id, code, kind, title, owner_id, departments, approval_log,
	status, released, released_at, version, created_at, updated_at`

// AggregateRepository implements port.AggregateRepository
type AggregateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAggregateRepository creates a new aggregate repository
func NewAggregateRepository(db *sql.DB, logger *zap.Logger) *AggregateRepository {
	return &AggregateRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new workflow aggregate
func (r *AggregateRepository) Create(ctx context.Context, agg *entity.WorkflowAggregate) error {
	query := `
		INSERT INTO workflow_aggregates (
			code, kind, title, owner_id, departments, approval_log,
			status, released, released_at, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	departments, log, err := encodeAggregate(agg)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if agg.CreatedAt.IsZero() {
		agg.CreatedAt = now
	}
	if agg.UpdatedAt.IsZero() {
		agg.UpdatedAt = agg.CreatedAt
	}
	if agg.Version == 0 {
		agg.Version = 1
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		agg.Code,
		agg.Kind,
		agg.Title,
		agg.OwnerID,
		departments,
		log,
		agg.Status,
		agg.Released,
		agg.ReleasedAt,
		agg.Version,
		agg.CreatedAt,
		agg.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create aggregate", zap.String("code", agg.Code), zap.Error(err))
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("%w: code %s already exists", entity.ErrValidation, agg.Code)
		}
		return fmt.Errorf("failed to create aggregate: %w", sqlite.TranslateError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	agg.ID = id
	return nil
}

// GetByID retrieves an aggregate by ID
func (r *AggregateRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowAggregate, error) {
	query := `SELECT ` + aggregateColumns + ` FROM workflow_aggregates WHERE id = ?`

	agg, err := scanAggregate(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get aggregate", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get aggregate: %w", sqlite.TranslateError(err))
	}
	return agg, nil
}

// GetByCode retrieves an aggregate by its generated identifier
func (r *AggregateRepository) GetByCode(ctx context.Context, code string) (*entity.WorkflowAggregate, error) {
	query := `SELECT ` + aggregateColumns + ` FROM workflow_aggregates WHERE code = ?`

	agg, err := scanAggregate(r.getExecutor(ctx).QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get aggregate by code", zap.String("code", code), zap.Error(err))
		return nil, fmt.Errorf("failed to get aggregate: %w", sqlite.TranslateError(err))
	}
	return agg, nil
}

// ExistsByCode reports whether an identifier is already used by an aggregate
func (r *AggregateRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists int
	err := r.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM workflow_aggregates WHERE code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check aggregate code: %w", sqlite.TranslateError(err))
	}
	return exists == 1, nil
}

// List retrieves aggregates newest first
func (r *AggregateRepository) List(ctx context.Context, filter entity.AggregateFilter) ([]*entity.WorkflowAggregate, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + aggregateColumns + ` FROM workflow_aggregates`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list aggregates", zap.Error(err))
		return nil, fmt.Errorf("failed to list aggregates: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	var aggs []*entity.WorkflowAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		aggs = append(aggs, agg)
	}

	return aggs, rows.Err()
}

// UpdateDecision writes the log and derived fields when the stored version still matches
func (r *AggregateRepository) UpdateDecision(ctx context.Context, agg *entity.WorkflowAggregate, expectedVersion int64) error {
	query := `
		UPDATE workflow_aggregates
		SET approval_log = ?, status = ?, released = ?, released_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND released = 0
	`

	_, log, err := encodeAggregate(agg)
	if err != nil {
		return err
	}

	updatedAt := agg.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		log,
		agg.Status,
		agg.Released,
		agg.ReleasedAt,
		updatedAt,
		agg.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update aggregate decision",
			zap.Int64("id", agg.ID),
			zap.Int64("expected_version", expectedVersion),
			zap.Error(err))
		return fmt.Errorf("failed to update aggregate: %w", sqlite.TranslateError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: aggregate %d at version %d", entity.ErrVersionConflict, agg.ID, expectedVersion)
	}

	agg.Version = expectedVersion + 1
	agg.UpdatedAt = updatedAt
	return nil
}

// getExecutor returns appropriate executor based on context
func (r *AggregateRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func encodeAggregate(agg *entity.WorkflowAggregate) (string, string, error) {
	departments := agg.Departments
	if departments == nil {
		departments = []entity.Department{}
	}
	deptJSON, err := json.Marshal(departments)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode departments: %w", err)
	}

	log := agg.ApprovalLog
	if log == nil {
		log = entity.ApprovalLog{}
	}
	logJSON, err := json.Marshal(log)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode approval log: %w", err)
	}

	return string(deptJSON), string(logJSON), nil
}

func scanAggregate(row rowScanner) (*entity.WorkflowAggregate, error) {
	var (
		agg         entity.WorkflowAggregate
		departments string
		log         string
		releasedAt  sql.NullTime
	)

	err := row.Scan(
		&agg.ID,
		&agg.Code,
		&agg.Kind,
		&agg.Title,
		&agg.OwnerID,
		&departments,
		&log,
		&agg.Status,
		&agg.Released,
		&releasedAt,
		&agg.Version,
		&agg.CreatedAt,
		&agg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(departments), &agg.Departments); err != nil {
		return nil, fmt.Errorf("decode departments of %s: %w", agg.Code, err)
	}
	if err := json.Unmarshal([]byte(log), &agg.ApprovalLog); err != nil {
		return nil, fmt.Errorf("decode approval log of %s: %w", agg.Code, err)
	}
	if agg.ApprovalLog == nil {
		agg.ApprovalLog = entity.ApprovalLog{}
	}
	if releasedAt.Valid {
		agg.ReleasedAt = &releasedAt.Time
	}

	return &agg, nil
}

// Verify interface compliance
var (
	_ port.AggregateRepository = (*AggregateRepository)(nil)
	_ port.IdentifierLookup    = (*AggregateRepository)(nil)
)
