package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/freelance-market/internal/types"
)

// -----------------------------------------------------------------------------
// Notification Methods
// -----------------------------------------------------------------------------

// CreateNotification inserts a notification record
func (db *DB) CreateNotification(ctx context.Context, n *types.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := db.q.QueryRow(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, job_id, proposal_id,
		                            payment_id, actor_id, action_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.JobID, n.ProposalID,
		n.PaymentID, n.ActorID, n.ActionURL,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications lists a user's notifications newest first
func (db *DB) ListNotifications(ctx context.Context, userID uuid.UUID, f types.NotificationFilter) ([]types.Notification, error) {
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := db.q.Query(ctx,
		`SELECT id, user_id, type, title, message, job_id, proposal_id, payment_id, actor_id,
		        is_read, read_at, action_url, created_at
		 FROM notifications
		 WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		userID, f.UnreadOnly, limitArg(f.Limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]types.Notification, 0)
	for rows.Next() {
		var n types.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.JobID,
			&n.ProposalID, &n.PaymentID, &n.ActorID, &n.IsRead, &n.ReadAt, &n.ActionURL,
			&n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return notifications, nil
}

// CountUnreadNotifications counts a user's unread notifications
func (db *DB) CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := db.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead marks one of a user's notifications read. Reports
// false when the user owns no such notification.
func (db *DB) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := db.q.Exec(ctx,
		`UPDATE notifications
		 SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		 WHERE id = $1 AND user_id = $2`,
		id, userID, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkAllNotificationsRead marks every unread notification of a user read
func (db *DB) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	tag, err := db.q.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE user_id = $1 AND NOT is_read`,
		userID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteNotification deletes one of a user's notifications
func (db *DB) DeleteNotification(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	tag, err := db.q.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteAllNotifications deletes every notification of a user
func (db *DB) DeleteAllNotifications(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := db.q.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
