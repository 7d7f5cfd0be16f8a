package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"rishta/models"
)

func (db *DB) CreateUser(ctx context.Context, login, password string) (models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	u := models.User{
		ID:       uuid.NewString(),
		Login:    login,
		Password: string(hashed),
	}
	now := db.timestamp()
	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO users (id, login, password, created_at) VALUES (?, ?, ?, ?)",
		u.ID, u.Login, u.Password, now,
	)
	if err != nil {
		return models.User{}, translate(err, "db.CreateUser")
	}
	u.CreatedAt, _ = parseTime(now)
	return u, nil
}

func (db *DB) AuthenticateUser(ctx context.Context, login, password string) (models.User, bool, error) {
	u, err := db.getUser(ctx, "login", login)
	if errors.Is(err, ErrNoRows) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	if err != nil {
		return models.User{}, false, nil
	}
	return u, true, nil
}

func (db *DB) GetUser(ctx context.Context, id string) (models.User, error) {
	return db.getUser(ctx, "id", id)
}

func (db *DB) getUser(ctx context.Context, column, value string) (models.User, error) {
	var u models.User
	var created string
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, login, password, created_at FROM users WHERE "+column+" = ?", value,
	).Scan(&u.ID, &u.Login, &u.Password, &created)
	if err != nil {
		return models.User{}, translate(err, "db.GetUser")
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (db *DB) UserExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, translate(err, "db.UserExists")
	}
	return count > 0, nil
}

// CountUsers is used by the control socket stats.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		return 0, translate(err, "db.CountUsers")
	}
	return count, nil
}
