package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApiKeyCreate_GeneratesIDAndInserts(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	apiKeyDB := NewApiKeyDB(sqlDB)
	expires := time.Now().Add(30 * 24 * time.Hour)

	mock.ExpectExec("INSERT INTO api_keys").
		WithArgs(sqlmock.AnyArg(), "user1", "digest1", "ci-pipeline", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	key, err := apiKeyDB.Create(context.Background(), "user1", "digest1", "ci-pipeline", &expires)
	require.NoError(t, err)
	assert.NotEmpty(t, key.ID)
	assert.True(t, key.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

var apiKeyColumns = []string{"id", "owner_user_id", "key_digest", "display_name", "active",
	"created_at", "expires_at", "last_used_at", "request_count"}

func TestApiKeyGetByDigest_ScansNullableTimestamps(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	apiKeyDB := NewApiKeyDB(sqlDB)
	now := time.Now()
	rows := sqlmock.NewRows(apiKeyColumns).
		AddRow("key1", "user1", "digest1", "ci-pipeline", true, now, nil, nil, int64(5))

	mock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_digest").WithArgs("digest1").WillReturnRows(rows)

	key, err := apiKeyDB.GetByDigest(context.Background(), "digest1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), key.RequestCount)
	assert.Nil(t, key.ExpiresAt)
	assert.Nil(t, key.LastUsedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApiKeyGetByDigest_NotFoundReturnsError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	apiKeyDB := NewApiKeyDB(sqlDB)
	mock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_digest").
		WithArgs("missing").WillReturnRows(sqlmock.NewRows(apiKeyColumns))

	_, err = apiKeyDB.GetByDigest(context.Background(), "missing")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApiKeyListByOwner_OrdersMostRecentFirst(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	apiKeyDB := NewApiKeyDB(sqlDB)
	now := time.Now()
	rows := sqlmock.NewRows(apiKeyColumns).
		AddRow("key2", "user1", "digest2", "newer", true, now, nil, nil, int64(0)).
		AddRow("key1", "user1", "digest1", "older", true, now.Add(-time.Hour), nil, nil, int64(3))

	mock.ExpectQuery("SELECT (.+) FROM api_keys WHERE owner_user_id (.+) ORDER BY created_at DESC").
		WithArgs("user1").WillReturnRows(rows)

	keys, err := apiKeyDB.ListByOwner(context.Background(), "user1")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "key2", keys[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApiKeyRevoke_DeactivatesWithoutDeleting(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	apiKeyDB := NewApiKeyDB(sqlDB)
	mock.ExpectExec("UPDATE api_keys SET active = false WHERE id").
		WithArgs("key1").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, apiKeyDB.Revoke(context.Background(), "key1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApiKeyRecordUse_BumpsCounterAndTimestamp(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	apiKeyDB := NewApiKeyDB(sqlDB)
	mock.ExpectExec("UPDATE api_keys SET request_count").
		WithArgs(sqlmock.AnyArg(), "key1").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, apiKeyDB.RecordUse(context.Background(), "key1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
