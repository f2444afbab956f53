package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/customs-flow/internal/model"
)

// CreateNotification stores a notification for later delivery.
func (s *SQLiteStorage) CreateNotification(ctx context.Context, notification *model.Notification) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNotification(notification); err != nil {
		return err
	}
	return s.createNotificationTx(ctx, s.db, notification)
}

func (s *SQLiteStorage) createNotificationTx(ctx context.Context, q queryable, notification *model.Notification) error {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO notifications (user_id, type, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		notification.UserID,
		notification.Type,
		notification.Message,
		notification.Read,
		notification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get notification id: %w", err)
	}
	notification.ID = id
	return nil
}

// GetNotifications lists a user's notifications, newest first.
func (s *SQLiteStorage) GetNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return s.getNotificationsTx(ctx, s.db, userID)
}

func (s *SQLiteStorage) getNotificationsTx(ctx context.Context, q queryable, userID string) ([]model.Notification, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, type, message, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notifications []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}
