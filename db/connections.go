package db

import (
	"context"

	"github.com/google/uuid"

	"rishta/models"
)

const likeColumns = "id, sender_id, receiver_id, status, created_at"

// FindConnectionRequest returns the request sent by sender to receiver. Only
// this direction is looked at.
func (db *DB) FindConnectionRequest(ctx context.Context, sender, receiver string) (models.ConnectionRequest, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+likeColumns+" FROM likes WHERE sender_id = ? AND receiver_id = ?",
		sender, receiver,
	)
	r, err := scanConnectionRequest(row)
	return r, translate(err, "db.FindConnectionRequest")
}

func (db *DB) GetConnectionRequest(ctx context.Context, id string) (models.ConnectionRequest, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+likeColumns+" FROM likes WHERE id = ?", id)
	r, err := scanConnectionRequest(row)
	return r, translate(err, "db.GetConnectionRequest")
}

// InsertConnectionRequest stores r, filling in ID, Status and CreatedAt when
// empty. A second request for the same direction fails with ErrDuplicate.
func (db *DB) InsertConnectionRequest(ctx context.Context, r *models.ConnectionRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.StatusSent
	}
	now := db.timestamp()
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO likes ("+likeColumns+") VALUES (?, ?, ?, ?, ?)",
		r.ID, r.SenderID, r.ReceiverID, string(r.Status), now,
	)
	if err != nil {
		return translate(err, "db.InsertConnectionRequest")
	}
	r.CreatedAt, _ = parseTime(now)
	return nil
}

// UpdateConnectionStatus moves request id from one status to another and
// reports whether a row changed. It is a no-op when the row is not in from.
func (db *DB) UpdateConnectionStatus(ctx context.Context, id string, from, to models.ConnectionStatus) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE likes SET status = ? WHERE id = ? AND status = ?",
		string(to), id, string(from),
	)
	if err != nil {
		return false, translate(err, "db.UpdateConnectionStatus")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListConnectionRequests returns the requests received by userID when
// incoming is set, otherwise the ones it sent. Newest first.
func (db *DB) ListConnectionRequests(ctx context.Context, userID string, incoming bool) ([]models.ConnectionRequest, error) {
	column := "sender_id"
	if incoming {
		column = "receiver_id"
	}
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+likeColumns+" FROM likes WHERE "+column+" = ? ORDER BY created_at DESC, id",
		userID,
	)
	if err != nil {
		return nil, translate(err, "db.ListConnectionRequests")
	}
	defer rows.Close()

	var requests []models.ConnectionRequest
	for rows.Next() {
		r, err := scanConnectionRequest(rows)
		if err != nil {
			return nil, translate(err, "db.ListConnectionRequests.Scan")
		}
		requests = append(requests, r)
	}
	return requests, translate(rows.Err(), "db.ListConnectionRequests")
}

// IsConnected reports whether either member of pair accepted a request from
// the other.
func (db *DB) IsConnected(ctx context.Context, pair models.Pair) (bool, error) {
	var connected bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM likes
			 WHERE status = 'accepted'
			   AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		)`,
		pair.Lo, pair.Hi, pair.Hi, pair.Lo,
	).Scan(&connected)
	if err != nil {
		return false, translate(err, "db.IsConnected")
	}
	return connected, nil
}

func scanConnectionRequest(s scanner) (models.ConnectionRequest, error) {
	var r models.ConnectionRequest
	var status, created string
	if err := s.Scan(&r.ID, &r.SenderID, &r.ReceiverID, &status, &created); err != nil {
		return models.ConnectionRequest{}, err
	}
	r.Status = models.ConnectionStatus(status)
	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return models.ConnectionRequest{}, err
	}
	return r, nil
}
