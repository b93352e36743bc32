package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/entity"
	"github.com/garyjia/uxone/internal/infrastructure/persistence/sqlite"
)

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a user
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*entity.User, error) {
	query := `
		SELECT user_id, display_name, department, role, lark_open_id
		FROM users
		WHERE user_id = ?
	`

	var u entity.User
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, userID).Scan(
		&u.UserID, &u.DisplayName, &u.Department, &u.Role, &u.LarkOpenID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", sqlite.TranslateError(err))
	}
	return &u, nil
}

// GetByLarkOpenID resolves a Lark sender to a directory entry
func (r *UserRepository) GetByLarkOpenID(ctx context.Context, openID string) (*entity.User, error) {
	if openID == "" {
		return nil, nil
	}

	query := `
		SELECT user_id, display_name, department, role, lark_open_id
		FROM users
		WHERE lark_open_id = ?
		ORDER BY user_id
		LIMIT 1
	`

	var u entity.User
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, openID).Scan(
		&u.UserID, &u.DisplayName, &u.Department, &u.Role, &u.LarkOpenID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user by open id", zap.String("open_id", openID), zap.Error(err))
		return nil, fmt.Errorf("failed to get user by open id: %w", sqlite.TranslateError(err))
	}
	return &u, nil
}

// ListDepartmentHeads returns the heads of the given departments ordered by user ID
func (r *UserRepository) ListDepartmentHeads(ctx context.Context, departments []entity.Department) ([]*entity.User, error) {
	if len(departments) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(departments))
	args := make([]interface{}, 0, len(departments)+1)
	args = append(args, entity.RoleDepartmentHead)
	for i, d := range departments {
		placeholders[i] = "?"
		args = append(args, d)
	}

	query := `
		SELECT user_id, display_name, department, role, lark_open_id
		FROM users
		WHERE role = ? AND department IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY user_id
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list department heads", zap.Error(err))
		return nil, fmt.Errorf("failed to list department heads: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(&u.UserID, &u.DisplayName, &u.Department, &u.Role, &u.LarkOpenID); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// Upsert inserts or replaces a directory entry
func (r *UserRepository) Upsert(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (user_id, display_name, department, role, lark_open_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = excluded.display_name,
			department = excluded.department,
			role = excluded.role,
			lark_open_id = excluded.lark_open_id,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		user.UserID, user.DisplayName, user.Department, user.Role, user.LarkOpenID, now, now,
	)
	if err != nil {
		r.logger.Error("Failed to upsert user", zap.String("user_id", user.UserID), zap.Error(err))
		return fmt.Errorf("failed to upsert user: %w", sqlite.TranslateError(err))
	}
	return nil
}

// getExecutor returns appropriate executor based on context
func (r *UserRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
