package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/DTMBX/evident/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageGet_ReturnsZeroedCounterWhenMonthHasNoActivity(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	usageDB := NewUsageDB(sqlDB)
	ym := yearMonth(time.Now())

	mock.ExpectQuery("SELECT (.+) FROM usage_counters WHERE user_id").
		WithArgs("user1", ym).WillReturnRows(sqlmock.NewRows(
		[]string{"pdf_documents_processed", "videos_processed", "video_hours", "transcription_minutes", "api_calls", "cases_created"}))

	counter, err := usageDB.Get(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, "user1", counter.UserID)
	assert.Equal(t, int64(0), counter.PDFDocumentsProcessed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageGet_ScansExistingCounters(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	usageDB := NewUsageDB(sqlDB)
	ym := yearMonth(time.Now())
	rows := sqlmock.NewRows(
		[]string{"pdf_documents_processed", "videos_processed", "video_hours", "transcription_minutes", "api_calls", "cases_created"}).
		AddRow(int64(3), int64(1), 0.5, 12.0, int64(40), int64(2))

	mock.ExpectQuery("SELECT (.+) FROM usage_counters WHERE user_id").
		WithArgs("user1", ym).WillReturnRows(rows)

	counter, err := usageDB.Get(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), counter.PDFDocumentsProcessed)
	assert.Equal(t, int64(40), counter.APICalls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageIncrement_UpsertsTargetColumn(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	usageDB := NewUsageDB(sqlDB)
	ym := yearMonth(time.Now())

	mock.ExpectExec("INSERT INTO usage_counters").
		WithArgs("user1", ym, 1.0).WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, usageDB.Increment(context.Background(), "user1", models.CounterAPICalls, 1))
	require.NoError(t, mock.ExpectationsWereMet())
}
