package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"rishta/models"
)

const conversationColumns = "id, user1_id, user2_id, last_message, last_updated, created_at"

// FindConversation looks the conversation up by its canonical pair, so the
// order in which the participants were stored does not matter.
func (db *DB) FindConversation(ctx context.Context, pair models.Pair) (models.Conversation, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE pair_lo = ? AND pair_hi = ?",
		pair.Lo, pair.Hi,
	)
	c, err := scanConversation(row)
	return c, translate(err, "db.FindConversation")
}

func (db *DB) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id)
	c, err := scanConversation(row)
	return c, translate(err, "db.GetConversation")
}

// InsertConversation stores c with a fresh ID and server timestamps. A
// conversation for the same unordered pair fails with ErrDuplicate.
func (db *DB) InsertConversation(ctx context.Context, c *models.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	pair := c.Pair()
	now := db.timestamp()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO conversations (id, user1_id, user2_id, pair_lo, pair_hi, last_message, last_updated, created_at)
		 VALUES (?, ?, ?, ?, ?, NULL, ?, ?)`,
		c.ID, c.ParticipantA, c.ParticipantB, pair.Lo, pair.Hi, now, now,
	)
	if err != nil {
		return translate(err, "db.InsertConversation")
	}
	c.LastMessage = nil
	c.CreatedAt, _ = parseTime(now)
	c.LastUpdated = c.CreatedAt
	return nil
}

// ListConversations returns every conversation userID takes part in, most
// recently active first.
func (db *DB) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+conversationColumns+` FROM conversations
		  WHERE user1_id = ? OR user2_id = ?
		  ORDER BY last_updated DESC, id`,
		userID, userID,
	)
	if err != nil {
		return nil, translate(err, "db.ListConversations")
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, translate(err, "db.ListConversations.Scan")
		}
		conversations = append(conversations, c)
	}
	return conversations, translate(rows.Err(), "db.ListConversations")
}

// CountConversations is used by the control socket stats.
func (db *DB) CountConversations(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&count); err != nil {
		return 0, translate(err, "db.CountConversations")
	}
	return count, nil
}

func scanConversation(s scanner) (models.Conversation, error) {
	var c models.Conversation
	var last sql.NullString
	var updated, created string
	if err := s.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &last, &updated, &created); err != nil {
		return models.Conversation{}, err
	}
	if last.Valid {
		v := last.String
		c.LastMessage = &v
	}
	var err error
	if c.LastUpdated, err = parseTime(updated); err != nil {
		return models.Conversation{}, err
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return models.Conversation{}, err
	}
	return c, nil
}
