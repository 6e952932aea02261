package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automatpos/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func newStubStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin":   {ID: 1, Username: "admin", Password: "admin123", Role: domain.RoleAdmin, Active: true},
			"retired": {ID: 7, Username: "retired", Password: "retired123", Role: domain.RoleCashier, Active: false},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := newStubStore()

	manager := NewAuthManager("test-secret", time.Hour, store, nil)
	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	for _, user := range users {
		assert.True(t, strings.HasPrefix(user.Password, "$2"), "user %s still has a plain password", user.Username)
	}
	assert.GreaterOrEqual(t, store.updates, 2)
}

func TestLoginIssuesTokenCarryingUserID(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newStubStore(), nil)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.UserID)
	assert.Equal(t, domain.RoleAdmin, resp.Role)
	assert.NotEmpty(t, resp.ExpiresAt)

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{UserID: 1, Username: "admin", Role: domain.RoleAdmin}, actor)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newStubStore(), nil)
	ctx := context.Background()

	_, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, errInvalidCredentials)

	_, err = manager.Login(ctx, domain.LoginRequest{Username: "nobody", Password: "admin123"})
	assert.ErrorIs(t, err, errInvalidCredentials)

	_, err = manager.Login(ctx, domain.LoginRequest{Username: "retired", Password: "retired123"})
	assert.ErrorIs(t, err, errInactiveAccount)
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newStubStore(), nil)
	other := NewAuthManager("another-secret", time.Hour, newStubStore(), nil)

	resp, err := other.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	_, err = manager.ParseToken(resp.AccessToken)
	assert.ErrorIs(t, err, errInvalidToken)

	expired, err := manager.sign(1, "admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = manager.ParseToken(expired)
	assert.ErrorIs(t, err, errInvalidToken)

	badSubject := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin",
			Issuer:    tokenIssuer,
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	})
	signed, err := badSubject.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = manager.ParseToken(signed)
	assert.Error(t, err)
}
