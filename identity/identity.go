// Package identity issues and checks the identity of the current user.
// Passwords are verified against bcrypt hashes in the store; a successful
// login yields an HS256 token whose subject is the user id.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"rishta/apperr"
	"rishta/db"
	"rishta/models"
)

// Session is the authenticated caller. The zero value is unauthenticated.
type Session struct {
	UserID string
	Login  string
}

func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// Store is the part of the database identity needs.
type Store interface {
	CreateUser(ctx context.Context, login, password string) (models.User, error)
	AuthenticateUser(ctx context.Context, login, password string) (models.User, bool, error)
}

type Credentials struct {
	Login    string `json:"login" validate:"required,min=3,max=64,printascii"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type Token struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        models.User `json:"user"`
}

type claims struct {
	Login string `json:"login"`
	jwt.RegisteredClaims
}

type Service struct {
	store    Store
	secret   []byte
	ttl      time.Duration
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Store, secret string, ttl time.Duration) *Service {
	return &Service{
		store:    store,
		secret:   []byte(secret),
		ttl:      ttl,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Register creates a user. A taken login fails with apperr.ErrAlreadyExists.
func (s *Service) Register(ctx context.Context, c Credentials) (models.User, error) {
	c.Login = strings.TrimSpace(c.Login)
	if err := s.validate.Struct(c); err != nil {
		return models.User{}, apperr.Wrap(apperr.CodeInvalidArgument, "invalid credentials", err)
	}
	u, err := s.store.CreateUser(ctx, c.Login, c.Password)
	if errors.Is(err, db.ErrDuplicate) {
		return models.User{}, apperr.New(apperr.CodeAlreadyExists, "login already taken")
	}
	if err != nil {
		return models.User{}, apperr.Persistence("register", err)
	}
	return u, nil
}

// Login checks the password and returns the user together with a signed token.
func (s *Service) Login(ctx context.Context, c Credentials) (Token, error) {
	u, ok, err := s.store.AuthenticateUser(ctx, strings.TrimSpace(c.Login), c.Password)
	if err != nil {
		return Token{}, apperr.Persistence("login", err)
	}
	if !ok {
		return Token{}, apperr.New(apperr.CodeNotAuthenticated, "wrong login or password")
	}
	return s.issue(u)
}

// Authenticate is Login without a token, used by the line protocol.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (Session, error) {
	u, ok, err := s.store.AuthenticateUser(ctx, strings.TrimSpace(c.Login), c.Password)
	if err != nil {
		return Session{}, apperr.Persistence("login", err)
	}
	if !ok {
		return Session{}, apperr.New(apperr.CodeNotAuthenticated, "wrong login or password")
	}
	return Session{UserID: u.ID, Login: u.Login}, nil
}

func (s *Service) issue(u models.User) (Token, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Login: u.Login,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Token{}, errors.Wrap(err, "sign token")
	}
	return Token{AccessToken: signed, ExpiresAt: expires, User: u}, nil
}

// Verify parses a token issued by this service. Any failure, including
// expiry, is apperr.ErrNotAuthenticated.
func (s *Service) Verify(tokenStr string) (Session, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || c.Subject == "" {
		return Session{}, apperr.Wrap(apperr.CodeNotAuthenticated, "invalid token", err)
	}
	return Session{UserID: c.Subject, Login: c.Login}, nil
}
