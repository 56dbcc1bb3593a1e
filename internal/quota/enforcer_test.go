package quota

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/config"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/models"
)

func newTestEnforcer(t *testing.T) (*Enforcer, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	cfg := config.Config{TierLimits: map[string]config.TierLimit{
		"free": {UploadsPerMonth: 5},
	}}
	return NewEnforcer(db.NewUsageDB(sqlDB), &cfg), mock
}

func TestCheck_AllowsWhenUnderLimit(t *testing.T) {
	e, mock := newTestEnforcer(t)

	rows := sqlmock.NewRows([]string{
		"pdf_documents_processed", "videos_processed",
		"video_hours", "transcription_minutes", "api_calls", "cases_created",
	}).AddRow(2, 0, 0.0, 0.0, 0, 0)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	err := e.Check(context.Background(), "user-1", models.TierFree, models.CounterPDFDocuments, 1)
	assert.NoError(t, err)
}

func TestCheck_DeniesWhenLimitWouldBeExceeded(t *testing.T) {
	e, mock := newTestEnforcer(t)

	rows := sqlmock.NewRows([]string{
		"pdf_documents_processed", "videos_processed",
		"video_hours", "transcription_minutes", "api_calls", "cases_created",
	}).AddRow(5, 0, 0.0, 0.0, 0, 0)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	err := e.Check(context.Background(), "user-1", models.TierFree, models.CounterPDFDocuments, 1)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.QuotaExceeded, appErr.Kind)
}

func TestCheck_UnlimitedTierSkipsLookup(t *testing.T) {
	e, mock := newTestEnforcer(t)
	e.cfg.TierLimits["enterprise"] = config.TierLimit{UploadsPerMonth: config.Unlimited}

	err := e.Check(context.Background(), "user-1", models.TierEnterprise, models.CounterPDFDocuments, 1000)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
