package db

import (
	"context"

	"github.com/google/uuid"

	"rishta/models"
)

const notificationColumns = "id, user_id, sender_id, type, is_read, created_at"

func (db *DB) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := db.timestamp()
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO notifications ("+notificationColumns+") VALUES (?, ?, ?, ?, 0, ?)",
		n.ID, n.UserID, n.SenderID, string(n.Type), now,
	)
	if err != nil {
		return translate(err, "db.InsertNotification")
	}
	n.Read = false
	n.CreatedAt, _ = parseTime(now)
	return nil
}

// ListNotifications returns the notifications addressed to userID, newest
// first.
func (db *DB) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications WHERE user_id = ?"
	if unreadOnly {
		query += " AND is_read = 0"
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, translate(err, "db.ListNotifications")
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		var typ, created string
		if err := rows.Scan(&n.ID, &n.UserID, &n.SenderID, &typ, &n.Read, &created); err != nil {
			return nil, translate(err, "db.ListNotifications.Scan")
		}
		n.Type = models.NotificationType(typ)
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, translate(rows.Err(), "db.ListNotifications")
}

func (db *DB) MarkNotificationsRead(ctx context.Context, userID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0", userID,
	)
	if err != nil {
		return 0, translate(err, "db.MarkNotificationsRead")
	}
	return result.RowsAffected()
}
