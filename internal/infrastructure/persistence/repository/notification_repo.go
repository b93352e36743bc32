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

const notificationColumns = `
	id, notification_uuid, aggregate_id, recipient_user_id, title, message,
	type, link, status, attempts, error_message, sent_at, created_at, updated_at`

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new notification record
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			notification_uuid, aggregate_id, recipient_user_id, title, message,
			type, link, status, attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if n.Status == "" {
		n.Status = entity.NotificationStatusPending
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		n.UUID,
		n.AggregateID,
		n.RecipientUserID,
		n.Title,
		n.Message,
		n.Type,
		n.Link,
		n.Status,
		n.Attempts,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.Int64("aggregate_id", n.AggregateID),
			zap.String("recipient", n.RecipientUserID),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", sqlite.TranslateError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	n.ID = id
	return nil
}

// GetByID retrieves a notification by ID
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

	n, err := scanNotification(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get notification", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", sqlite.TranslateError(err))
	}
	return n, nil
}

// MarkSent marks notification as sent
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64) error {
	query := `
		UPDATE notifications
		SET status = 'SENT', attempts = attempts + 1, error_message = NULL, sent_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC()
	_, err := r.getExecutor(ctx).ExecContext(ctx, query, now, now, id)
	if err != nil {
		r.logger.Error("Failed to mark notification as sent",
			zap.Int64("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to mark sent: %w", sqlite.TranslateError(err))
	}

	return nil
}

// MarkFailed records a failed delivery attempt
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, errorMsg string) error {
	query := `
		UPDATE notifications
		SET status = 'FAILED', attempts = attempts + 1, error_message = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query, errorMsg, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark notification as failed",
			zap.Int64("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to mark failed: %w", sqlite.TranslateError(err))
	}

	return nil
}

// ListFailed returns failed notifications still under the attempt cap, oldest first
func (r *NotificationRepository) ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = 'FAILED' AND attempts < ?
		ORDER BY updated_at ASC, id ASC
		LIMIT ?`

	return r.list(ctx, query, maxAttempts, limit)
}

// ListByRecipient returns a user's notifications, newest first
func (r *NotificationRepository) ListByRecipient(ctx context.Context, userID string, limit, offset int) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient_user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	return r.list(ctx, query, userID, limit, offset)
}

func (r *NotificationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Notification, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	var out []*entity.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *NotificationRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

func scanNotification(row rowScanner) (*entity.Notification, error) {
	var (
		n        entity.Notification
		errorMsg sql.NullString
		sentAt   sql.NullTime
	)

	err := row.Scan(
		&n.ID,
		&n.UUID,
		&n.AggregateID,
		&n.RecipientUserID,
		&n.Title,
		&n.Message,
		&n.Type,
		&n.Link,
		&n.Status,
		&n.Attempts,
		&errorMsg,
		&sentAt,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorMsg.Valid {
		n.ErrorMessage = errorMsg.String
	}
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	return &n, nil
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
