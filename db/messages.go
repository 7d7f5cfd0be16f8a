package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"rishta/models"
)

const messageColumns = "seq, id, conversation_id, sender_id, content, created_at, is_read"

// InsertMessage appends m to its conversation and updates the conversation's
// last_message and last_updated in the same transaction. The stored
// created_at is never earlier than that of a message already in the
// conversation, so timestamp order and seq order agree.
func (db *DB) InsertMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return translate(err, "db.InsertMessage.Begin")
	}
	defer tx.Rollback()

	now := db.timestamp()
	var latest sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT MAX(created_at) FROM messages WHERE conversation_id = ?", m.ConversationID,
	).Scan(&latest)
	if err != nil {
		return translate(err, "db.InsertMessage.Latest")
	}
	if latest.Valid && latest.String > now {
		now = latest.String
	}

	result, err := tx.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, sender_id, content, created_at, is_read) VALUES (?, ?, ?, ?, ?, 0)",
		m.ID, m.ConversationID, m.SenderID, m.Content, now,
	)
	if err != nil {
		return translate(err, "db.InsertMessage")
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "db.InsertMessage.Seq")
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE conversations SET last_message = ?, last_updated = ? WHERE id = ?",
		m.Content, now, m.ConversationID,
	)
	if err != nil {
		return translate(err, "db.InsertMessage.Conversation")
	}

	if err := tx.Commit(); err != nil {
		return translate(err, "db.InsertMessage.Commit")
	}

	m.Seq = seq
	m.Read = false
	m.CreatedAt, _ = parseTime(now)
	return nil
}

// ListMessages returns up to limit messages of the conversation with seq
// greater than afterSeq, ordered by created_at then seq. A limit of zero or
// less returns the whole remainder.
func (db *DB) ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+` FROM messages
		  WHERE conversation_id = ? AND seq > ?
		  ORDER BY created_at, seq
		  LIMIT ?`,
		conversationID, afterSeq, limit,
	)
	if err != nil {
		return nil, translate(err, "db.ListMessages")
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, translate(err, "db.ListMessages.Scan")
		}
		messages = append(messages, m)
	}
	return messages, translate(rows.Err(), "db.ListMessages")
}

// MarkConversationRead flags every message in the conversation that was not
// sent by readerID as read and returns how many changed.
func (db *DB) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET is_read = 1 WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0",
		conversationID, readerID,
	)
	if err != nil {
		return 0, translate(err, "db.MarkConversationRead")
	}
	return result.RowsAffected()
}

// UnreadCounts returns, per conversation of userID, how many messages from
// the peer are still unread. Conversations without unread messages are absent.
func (db *DB) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT m.conversation_id, COUNT(*)
		   FROM messages m
		   JOIN conversations c ON c.id = m.conversation_id
		  WHERE (c.user1_id = ? OR c.user2_id = ?)
		    AND m.sender_id <> ? AND m.is_read = 0
		  GROUP BY m.conversation_id`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, translate(err, "db.UnreadCounts")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, translate(err, "db.UnreadCounts.Scan")
		}
		counts[id] = n
	}
	return counts, translate(rows.Err(), "db.UnreadCounts")
}

// CountMessages is used by the control socket stats.
func (db *DB) CountMessages(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return 0, translate(err, "db.CountMessages")
	}
	return count, nil
}

func scanMessage(s scanner) (models.Message, error) {
	var m models.Message
	var created string
	if err := s.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.SenderID, &m.Content, &created, &m.Read); err != nil {
		return models.Message{}, err
	}
	var err error
	if m.CreatedAt, err = parseTime(created); err != nil {
		return models.Message{}, err
	}
	return m, nil
}
