// Package profiles implements the profile store operations: a user upserts
// their own profile and browses everybody else's.
package profiles

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"rishta/apperr"
	"rishta/db"
	"rishta/identity"
	"rishta/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type Store interface {
	UpsertProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	SearchProfiles(ctx context.Context, f models.ProfileFilter, now time.Time) ([]models.Profile, error)
}

type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store:    store,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Upsert stores p as the caller's profile. The user id always comes from the
// session, never from p.
func (s *Service) Upsert(ctx context.Context, sess identity.Session, p models.Profile) (models.Profile, error) {
	if !sess.Authenticated() {
		return models.Profile{}, apperr.ErrNotAuthenticated
	}
	p.UserID = sess.UserID
	if err := s.validate.Struct(p); err != nil {
		return models.Profile{}, apperr.Wrap(apperr.CodeInvalidArgument, "invalid profile", err)
	}
	if err := s.store.UpsertProfile(ctx, &p); err != nil {
		if errors.Is(err, db.ErrForeignKey) {
			return models.Profile{}, apperr.NotFound("user not found")
		}
		return models.Profile{}, apperr.Persistence("upsert profile", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, sess identity.Session, userID string) (models.Profile, error) {
	if !sess.Authenticated() {
		return models.Profile{}, apperr.ErrNotAuthenticated
	}
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, db.ErrNoRows) {
		return models.Profile{}, apperr.NotFound("profile not found")
	}
	if err != nil {
		return models.Profile{}, apperr.Persistence("get profile", err)
	}
	return p, nil
}

// Browse lists other users' profiles matching f. The caller's own profile is
// never part of the result.
func (s *Service) Browse(ctx context.Context, sess identity.Session, f models.ProfileFilter) ([]models.Profile, error) {
	if !sess.Authenticated() {
		return nil, apperr.ErrNotAuthenticated
	}
	if f.MinAge < 0 || f.MaxAge < 0 || f.MinHeight < 0 || f.MaxHeight < 0 || f.Offset < 0 {
		return nil, apperr.InvalidArg("filter bounds must not be negative")
	}
	if f.MaxAge > 0 && f.MinAge > f.MaxAge {
		return nil, apperr.InvalidArg("min_age is greater than max_age")
	}
	if f.MaxHeight > 0 && f.MinHeight > f.MaxHeight {
		return nil, apperr.InvalidArg("min_height is greater than max_height")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageSize
	case f.Limit > MaxPageSize:
		f.Limit = MaxPageSize
	}
	f.ExcludeUserID = sess.UserID

	found, err := s.store.SearchProfiles(ctx, f, s.now())
	if err != nil {
		return nil, apperr.Persistence("browse profiles", err)
	}
	if found == nil {
		found = []models.Profile{}
	}
	return found, nil
}
