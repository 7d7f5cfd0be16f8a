package identity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rishta/apperr"
	"rishta/db"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewService(database, "test-secret", time.Hour)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	u, err := svc.Register(ctx, Credentials{Login: " alice ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Login)

	_, err = svc.Register(ctx, Credentials{Login: "alice", Password: "secret2"})
	assert.Equal(t, apperr.CodeAlreadyExists, apperr.CodeOf(err))

	tok, err := svc.Login(ctx, Credentials{Login: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, u.ID, tok.User.ID)

	sess, err := svc.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, Session{UserID: u.ID, Login: "alice"}, sess)
	assert.True(t, sess.Authenticated())

	_, err = svc.Login(ctx, Credentials{Login: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	sess, err = svc.Authenticate(ctx, Credentials{Login: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)
}

func TestRegisterValidation(t *testing.T) {
	svc := setupService(t)
	_, err := svc.Register(context.Background(), Credentials{Login: "al", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = svc.Register(context.Background(), Credentials{Login: "alice", Password: "123"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	_, err := svc.Register(ctx, Credentials{Login: "alice", Password: "secret1"})
	require.NoError(t, err)

	tok, err := svc.Login(ctx, Credentials{Login: "alice", Password: "secret1"})
	require.NoError(t, err)

	other := NewService(nil, "another-secret", time.Hour)
	_, err = other.Verify(tok.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	_, err = svc.Verify("not-a-token")
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Verify(tok.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	assert.False(t, Session{}.Authenticated())
}
