package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/cache"
	"github.com/DTMBX/evident/internal/db"
)

func newTestSSOUserManager(t *testing.T) (*ssoUserManager, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	jwtManager := NewJWTManagerWithSessions(&JWTConfig{
		SecretKey: "test-secret-at-least-32-bytes-long!!", Issuer: "evident-test", TokenDuration: time.Hour,
	}, cache.NewMemoryCache())

	return &ssoUserManager{users: db.NewUserDB(sqlDB), tokens: jwtManager}, mock
}

var userColumns = []string{"id", "email", "password_hash", "tier", "active", "created_at", "last_login_at"}

func TestSSOUserManager_ExistingUserMintsToken(t *testing.T) {
	m, mock := newTestSSOUserManager(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").WithArgs("person@example.com").WillReturnRows(
		sqlmock.NewRows(userColumns).AddRow("user1", "person@example.com", "hash", "enterprise", true, time.Now(), nil))

	user, err := m.CreateOrUpdateOIDCUser(context.Background(), &OIDCUserInfo{
		Email: "person@example.com", Groups: []string{"legal-team"},
	})
	require.NoError(t, err)
	assert.Equal(t, "user1", user.ID)
	assert.Equal(t, "oidc", user.Provider)
	assert.NotEmpty(t, user.Token)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSSOUserManager_UnknownEmailAutoProvisionsEnterpriseTier(t *testing.T) {
	m, mock := newTestSSOUserManager(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").WithArgs("new@example.com").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user, err := m.CreateOrUpdateOIDCUser(context.Background(), &OIDCUserInfo{Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.NotEmpty(t, user.Token)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSSOUserManager_RejectsMissingEmail(t *testing.T) {
	m, _ := newTestSSOUserManager(t)

	_, err := m.CreateOrUpdateOIDCUser(context.Background(), &OIDCUserInfo{})
	require.Error(t, err)
}

func TestNewSSOHandler_NilAuthenticatorYieldsNilHandler(t *testing.T) {
	h := NewSSOHandler(nil, nil, nil)
	assert.Nil(t, h)
}
