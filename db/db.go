package db

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// timeLayout is fixed width so that text comparison orders like time does.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type DB struct {
	conn *sql.DB
	now  func() time.Time
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn, now: time.Now}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// SetClock replaces the time source used for server-assigned timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

func (db *DB) timestamp() string {
	return formatTime(db.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			login TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			full_name TEXT NOT NULL,
			date_of_birth TEXT NOT NULL DEFAULT '',
			gender TEXT NOT NULL DEFAULT '',
			height REAL NOT NULL DEFAULT 0,
			weight REAL NOT NULL DEFAULT 0,
			complexion TEXT NOT NULL DEFAULT '',
			physical_disability TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			religion TEXT NOT NULL DEFAULT '',
			caste TEXT NOT NULL DEFAULT '',
			mother_tongue TEXT NOT NULL DEFAULT '',
			languages_known TEXT NOT NULL DEFAULT '[]',
			education_qualification TEXT NOT NULL DEFAULT '',
			degree TEXT NOT NULL DEFAULT '',
			profession TEXT NOT NULL DEFAULT '',
			annual_income REAL NOT NULL DEFAULT 0,
			professional_status TEXT NOT NULL DEFAULT '',
			family_type TEXT NOT NULL DEFAULT '',
			parents_occupation TEXT NOT NULL DEFAULT '',
			siblings_details TEXT NOT NULL DEFAULT '',
			family_value_system TEXT NOT NULL DEFAULT '',
			preferred_age_min INTEGER NOT NULL DEFAULT 0,
			preferred_age_max INTEGER NOT NULL DEFAULT 0,
			preferred_height_min REAL NOT NULL DEFAULT 0,
			preferred_height_max REAL NOT NULL DEFAULT 0,
			expected_qualification TEXT NOT NULL DEFAULT '',
			preferred_profession TEXT NOT NULL DEFAULT '',
			preferred_location TEXT NOT NULL DEFAULT '',
			marital_status_preference TEXT NOT NULL DEFAULT '',
			hobbies TEXT NOT NULL DEFAULT '[]',
			interests TEXT NOT NULL DEFAULT '[]',
			dietary_preferences TEXT NOT NULL DEFAULT '',
			smoking_habits INTEGER NOT NULL DEFAULT 0,
			drinking_habits INTEGER NOT NULL DEFAULT 0,
			profile_photo_url TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS likes (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL REFERENCES users(id),
			receiver_id TEXT NOT NULL REFERENCES users(id),
			status TEXT NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'accepted')),
			created_at TEXT NOT NULL,
			UNIQUE(sender_id, receiver_id)
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user1_id TEXT NOT NULL REFERENCES users(id),
			user2_id TEXT NOT NULL REFERENCES users(id),
			pair_lo TEXT NOT NULL,
			pair_hi TEXT NOT NULL,
			last_message TEXT,
			last_updated TEXT NOT NULL,
			created_at TEXT NOT NULL,
			CHECK (pair_lo < pair_hi),
			UNIQUE(pair_lo, pair_hi)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			sender_id TEXT NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			sender_id TEXT NOT NULL REFERENCES users(id),
			type TEXT NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_likes_receiver ON likes(receiver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user1 ON conversations(user1_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user2 ON conversations(user2_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return errors.Wrap(err, "db.init")
		}
	}

	return nil
}
