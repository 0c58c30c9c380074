package auth

import (
	"context"
	"testing"
	"time"

	"online_store/internal/database/dbtest"
	"online_store/internal/errs"
	"online_store/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	return NewService(dbtest.New(t), "test-secret", ttl).WithBcryptCost(bcrypt.MinCost)
}

func TestRegisterCreatesUserAndCart(t *testing.T) {
	s := newService(t, time.Hour)
	u, err := s.Register(context.Background(), "alice", "Alice@Example.com", "secret1")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	var carts int64
	require.NoError(t, s.db.Model(&model.Cart{}).Where("user_id = ?", u.ID).Count(&carts).Error)
	assert.Equal(t, int64(1), carts)
}

func TestRegisterConflict(t *testing.T) {
	s := newService(t, time.Hour)
	ctx := context.Background()
	_, err := s.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	_, err = s.Register(ctx, "alice", "other@example.com", "secret1")
	assert.ErrorIs(t, err, errs.ErrConflict)
	_, err = s.Register(ctx, "alice2", "alice@example.com", "secret1")
	assert.ErrorIs(t, err, errs.ErrConflict)

	var users int64
	require.NoError(t, s.db.Model(&model.User{}).Count(&users).Error)
	assert.Equal(t, int64(1), users)
}

func TestRegisterValidation(t *testing.T) {
	s := newService(t, time.Hour)
	tests := []struct {
		name, username, email, password string
	}{
		{"short username", "al", "a@example.com", "secret1"},
		{"bad email", "alice", "alice.example.com", "secret1"},
		{"short password", "alice", "a@example.com", "123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(context.Background(), tt.username, tt.email, tt.password)
			assert.ErrorIs(t, err, errs.ErrInvalidArgument)
		})
	}
}

func TestLoginAndAuthenticate(t *testing.T) {
	s := newService(t, time.Hour)
	ctx := context.Background()
	u, err := s.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	token, got, err := s.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	id, err := s.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newService(t, time.Hour)
	ctx := context.Background()
	_, err := s.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	_, _, err = s.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, _, err = s.Login(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	s := newService(t, time.Hour)
	expired := newService(t, -time.Minute)
	u := &model.User{ID: 7, Username: "alice"}

	stale, err := expired.IssueToken(u)
	require.NoError(t, err)
	forged, err := NewService(nil, "other-secret", time.Hour).IssueToken(u)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage": "not-a-token",
		"expired": stale,
		"forged":  forged,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Authenticate(token)
			assert.ErrorIs(t, err, errs.ErrUnauthorized)
		})
	}
}
