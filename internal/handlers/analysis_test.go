package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/analyzers/violations"
	"github.com/DTMBX/evident/internal/audit"
	"github.com/DTMBX/evident/internal/blobstore"
	"github.com/DTMBX/evident/internal/cache"
	"github.com/DTMBX/evident/internal/config"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/events"
	"github.com/DTMBX/evident/internal/metrics"
	"github.com/DTMBX/evident/internal/models"
	"github.com/DTMBX/evident/internal/processor"
	"github.com/DTMBX/evident/internal/stages/ocr"
	"github.com/DTMBX/evident/internal/stages/transcription"
)

func setupAnalysisTest(t *testing.T) (*AnalysisHandler, sqlmock.Sqlmock) {
	gin.SetMode(gin.TestMode)
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	blobs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	bus, err := events.New(events.Config{})
	require.NoError(t, err)

	proc := processor.New(
		db.NewEvidenceDB(sqlDB),
		db.NewAnalysisDB(sqlDB),
		blobs,
		cache.NewMemoryCache(),
		bus,
		metrics.NewCollector("evident_test"),
		audit.New(sqlDB, zerolog.Nop()),
		transcription.New(transcription.LocalProvider{}, bus),
		ocr.New(ocr.LocalProvider{}, bus),
		violations.New(&violations.RuleSet{ProfileVersion: "v1"}),
		nil,
		&config.Config{},
	)

	return NewAnalysisHandler(proc, nil, nil), mock
}

var analysisResultColumns = []string{"id", "evidence_id", "fingerprint", "analyzer_profile_version",
	"state", "failing_stage", "result", "created_at", "completed_at"}

func analysisRowFor(result *models.AnalysisResult) *sqlmock.Rows {
	payload, err := json.Marshal(result)
	if err != nil {
		panic(err)
	}
	return sqlmock.NewRows(analysisResultColumns).AddRow(
		result.ID, result.EvidenceID, result.Fingerprint, result.AnalyzerProfileVersion,
		string(result.State), result.FailingStage, payload, result.CreatedAt, result.CompletedAt)
}

func TestAnalysisGet_TerminalStateReturns200(t *testing.T) {
	h, mock := setupAnalysisTest(t)

	result := &models.AnalysisResult{ID: "r1", EvidenceID: "ev1", State: models.AnalysisCompleted, CreatedAt: time.Now()}
	mock.ExpectQuery("SELECT (.+) FROM analysis_results WHERE id").WithArgs("r1").WillReturnRows(analysisRowFor(result))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	c.Request = httptest.NewRequest("GET", "/api/analysis/r1", nil)

	h.Get(c)

	assert.Equal(t, 200, w.Code)
}

func TestAnalysisGet_PendingStateReturns202(t *testing.T) {
	h, mock := setupAnalysisTest(t)

	result := &models.AnalysisResult{ID: "r1", EvidenceID: "ev1", State: models.AnalysisPending, CreatedAt: time.Now()}
	mock.ExpectQuery("SELECT (.+) FROM analysis_results WHERE id").WithArgs("r1").WillReturnRows(analysisRowFor(result))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	c.Request = httptest.NewRequest("GET", "/api/analysis/r1", nil)

	h.Get(c)

	assert.Equal(t, 202, w.Code)
}

func TestAnalysisGet_UnknownIDReturns404(t *testing.T) {
	h, mock := setupAnalysisTest(t)

	mock.ExpectQuery("SELECT (.+) FROM analysis_results WHERE id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	c.Request = httptest.NewRequest("GET", "/api/analysis/missing", nil)

	h.Get(c)

	assert.Equal(t, 404, w.Code)
}

func TestAnalysisReport_RejectsUnknownFormat(t *testing.T) {
	h, _ := setupAnalysisTest(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	c.Request = httptest.NewRequest("GET", "/api/analysis/r1/report?format=cuneiform", nil)

	h.Report(c)

	assert.Equal(t, 400, w.Code)
}
