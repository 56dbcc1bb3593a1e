package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/DTMBX/evident/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCreateUser_Success(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	userDB := NewUserDB(sqlDB)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "alice@example.com", sqlmock.AnyArg(), "starter", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user, err := userDB.CreateUser(ctx, "alice@example.com", "securepassword", models.TierStarter)

	assert.NoError(t, err)
	assert.NotNil(t, user)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.TierStarter, user.Tier)
	assert.True(t, user.Active)
	assert.NotEmpty(t, user.PasswordHash)

	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("securepassword")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_DefaultsToFreeTier(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	userDB := NewUserDB(sqlDB)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "bob@example.com", sqlmock.AnyArg(), "free", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user, err := userDB.CreateUser(ctx, "bob@example.com", "password123", "")

	assert.NoError(t, err)
	assert.Equal(t, models.TierFree, user.Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_RejectsInvalidTier(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	userDB := NewUserDB(sqlDB)
	_, err = userDB.CreateUser(context.Background(), "carol@example.com", "password123", models.Tier("gold"))
	assert.Error(t, err)
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	userDB := NewUserDB(sqlDB)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("missing@example.com").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err = userDB.GetUserByEmail(context.Background(), "missing@example.com")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyPassword_RejectsDisabledAccount(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	userDB := NewUserDB(sqlDB)
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.DefaultCost)

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "tier", "active", "created_at", "last_login_at"}).
		AddRow("u1", "dana@example.com", string(hashed), "free", false, time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("dana@example.com").
		WillReturnRows(rows)

	_, err = userDB.VerifyPassword(context.Background(), "dana@example.com", "correct-password")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestVerifyPassword_RejectsWrongPassword(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	userDB := NewUserDB(sqlDB)
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.DefaultCost)

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "tier", "active", "created_at", "last_login_at"}).
		AddRow("u1", "erin@example.com", string(hashed), "free", true, time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("erin@example.com").
		WillReturnRows(rows)

	_, err = userDB.VerifyPassword(context.Background(), "erin@example.com", "wrong-password")
	assert.Error(t, err)
}
