package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/DTMBX/evident/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisUpsert_GeneratesIDAndUpserts(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	analysisDB := NewAnalysisDB(sqlDB)
	result := &models.AnalysisResult{
		EvidenceID: "ev1", Fingerprint: "fp1", AnalyzerProfileVersion: "v1", State: models.AnalysisCompleted,
	}

	mock.ExpectExec("INSERT INTO analysis_results").
		WithArgs(sqlmock.AnyArg(), "ev1", "fp1", "v1", "completed", "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, analysisDB.Upsert(context.Background(), "ev1", result))
	assert.NotEmpty(t, result.ID)
	assert.False(t, result.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

var analysisColumns = []string{"id", "evidence_id", "fingerprint", "analyzer_profile_version",
	"state", "failing_stage", "result", "created_at", "completed_at"}

func analysisPayload(t *testing.T, evidenceID, fingerprint string) []byte {
	t.Helper()
	result := &models.AnalysisResult{
		ID: "res1", EvidenceID: evidenceID, Fingerprint: fingerprint,
		AnalyzerProfileVersion: "v1", State: models.AnalysisCompleted, Violations: []models.Violation{},
	}
	data, err := json.Marshal(result)
	require.NoError(t, err)
	return data
}

func TestAnalysisGetByFingerprint_UnmarshalsResult(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	analysisDB := NewAnalysisDB(sqlDB)
	now := time.Now()
	payload := analysisPayload(t, "ev1", "fp1")
	rows := sqlmock.NewRows(analysisColumns).
		AddRow("res1", "ev1", "fp1", "v1", "completed", "", payload, now, now)

	mock.ExpectQuery("SELECT (.+) FROM analysis_results WHERE evidence_id (.+) AND fingerprint").
		WithArgs("ev1", "fp1").WillReturnRows(rows)

	result, err := analysisDB.GetByFingerprint(context.Background(), "ev1", "fp1")
	require.NoError(t, err)
	assert.Equal(t, "ev1", result.EvidenceID)
	assert.Equal(t, models.AnalysisCompleted, result.State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisGetLatest_OrdersByCreatedAtDesc(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	analysisDB := NewAnalysisDB(sqlDB)
	now := time.Now()
	payload := analysisPayload(t, "ev1", "fp2")
	rows := sqlmock.NewRows(analysisColumns).
		AddRow("res2", "ev1", "fp2", "v1", "completed", "", payload, now, now)

	mock.ExpectQuery("SELECT (.+) FROM analysis_results WHERE evidence_id (.+) ORDER BY created_at DESC LIMIT 1").
		WithArgs("ev1").WillReturnRows(rows)

	result, err := analysisDB.GetLatest(context.Background(), "ev1")
	require.NoError(t, err)
	assert.Equal(t, "fp2", result.Fingerprint)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisGetByID_NotFoundReturnsError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	analysisDB := NewAnalysisDB(sqlDB)
	mock.ExpectQuery("SELECT (.+) FROM analysis_results WHERE id").
		WithArgs("missing").WillReturnRows(sqlmock.NewRows(analysisColumns))

	_, err = analysisDB.GetByID(context.Background(), "missing")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
