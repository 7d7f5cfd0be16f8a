package profiles

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rishta/apperr"
	"rishta/db"
	"rishta/identity"
	"rishta/models"
)

type fixture struct {
	svc   *Service
	alice identity.Session
	bob   identity.Session
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	alice, err := database.CreateUser(ctx, "alice", "secret1")
	require.NoError(t, err)
	bob, err := database.CreateUser(ctx, "bob", "secret1")
	require.NoError(t, err)

	svc := NewService(database)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return fixture{
		svc:   svc,
		alice: identity.Session{UserID: alice.ID, Login: alice.Login},
		bob:   identity.Session{UserID: bob.ID, Login: bob.Login},
	}
}

func TestUpsertUsesSessionUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.Upsert(ctx, f.alice, models.Profile{UserID: f.bob.UserID, FullName: "Alice", Gender: "female"})
	require.NoError(t, err)
	assert.Equal(t, f.alice.UserID, p.UserID)

	_, err = f.svc.Get(ctx, f.bob, f.bob.UserID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := f.svc.Get(ctx, f.bob, f.alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.FullName)
}

func TestUpsertValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		profile models.Profile
	}{
		{"missing name", models.Profile{}},
		{"bad gender", models.Profile{FullName: "A", Gender: "robot"}},
		{"bad date", models.Profile{FullName: "A", DateOfBirth: "01/02/1990"}},
		{"bad email", models.Profile{FullName: "A", Email: "not-an-email"}},
		{"inverted age range", models.Profile{FullName: "A", PreferredAgeMin: 30, PreferredAgeMax: 25}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Upsert(ctx, f.alice, tc.profile)
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
		})
	}

	_, err := f.svc.Upsert(ctx, identity.Session{}, models.Profile{FullName: "A"})
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)
}

func TestBrowseExcludesCaller(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, f.alice, models.Profile{FullName: "Alice", Gender: "female", DateOfBirth: "1998-02-01", Religion: "Hindu"})
	require.NoError(t, err)
	_, err = f.svc.Upsert(ctx, f.bob, models.Profile{FullName: "Bob", Gender: "male", DateOfBirth: "1994-05-20", Religion: "Hindu"})
	require.NoError(t, err)

	found, err := f.svc.Browse(ctx, f.alice, models.ProfileFilter{Religion: "hindu"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, f.bob.UserID, found[0].UserID)

	found, err = f.svc.Browse(ctx, f.bob, models.ProfileFilter{MinAge: 25, MaxAge: 30})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = f.svc.Browse(ctx, f.bob, models.ProfileFilter{MinAge: 29})
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = f.svc.Browse(ctx, f.bob, models.ProfileFilter{MinAge: 40, MaxAge: 30})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
