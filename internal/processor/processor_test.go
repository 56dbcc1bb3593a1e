package processor

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/analyzers/motions"
	"github.com/DTMBX/evident/internal/analyzers/violations"
	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/audit"
	"github.com/DTMBX/evident/internal/blobstore"
	"github.com/DTMBX/evident/internal/cache"
	"github.com/DTMBX/evident/internal/config"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/events"
	"github.com/DTMBX/evident/internal/metrics"
	"github.com/DTMBX/evident/internal/models"
	"github.com/DTMBX/evident/internal/stages/ocr"
	"github.com/DTMBX/evident/internal/stages/transcription"
)

func newTestProcessor(t *testing.T) (*Processor, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	blobs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)

	bus, err := events.New(events.Config{})
	require.NoError(t, err)

	// The pattern matches text the deterministic LocalProvider stubs always
	// produce ("local stub for ..."), so the pipeline test below observes a
	// real match without depending on an external ASR/OCR vendor.
	ruleSet := &violations.RuleSet{
		ProfileVersion: "v1",
		Rules: []violations.Rule{
			{ID: "R1", Name: "miranda-omission", Severity: models.SeverityHigh,
				Pattern: regexp.MustCompile("local stub"), Citations: []string{"Miranda v. Arizona"}},
		},
	}

	p := New(
		db.NewEvidenceDB(sqlDB),
		db.NewAnalysisDB(sqlDB),
		blobs,
		cache.NewMemoryCache(),
		bus,
		metrics.NewCollector("evident_test"),
		audit.New(sqlDB, zerolog.Nop()),
		transcription.New(transcription.LocalProvider{}, bus),
		ocr.New(ocr.LocalProvider{}, bus),
		violations.New(ruleSet),
		[]motions.Template{{RuleID: "R1", Name: "Motion to Suppress Statement", Rationale: "Miranda omission", Citations: []string{"Miranda v. Arizona"}}},
		&config.Config{
			TranscriptTTLSeconds: 60,
			OCRTTLSeconds:        60,
			ResultTTLSeconds:     60,
			MaxUploadBytes:       1 << 20,
		},
	)
	return p, mock
}

func expectAuditRecord(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestIngest_WritesReceivedEvidenceAndAudits(t *testing.T) {
	p, mock := newTestProcessor(t)

	mock.ExpectExec("INSERT INTO evidence").WillReturnResult(sqlmock.NewResult(1, 1))
	expectAuditRecord(mock)

	ev, err := p.Ingest(context.Background(), "user1", strings.NewReader("some evidence content"), models.EvidenceDocument, "statement.pdf", "CASE-1", "", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, models.EvidenceReceived, ev.Status)
	assert.Equal(t, "CASE-1", ev.CaseNumber)
	assert.NotEmpty(t, ev.ContentDigest)
}

func TestIngest_RejectsUnsupportedType(t *testing.T) {
	p, _ := newTestProcessor(t)

	_, err := p.Ingest(context.Background(), "user1", strings.NewReader("x"), models.EvidenceType("fax"), "a.fax", "", "", nil, 0)
	require.Error(t, err)
	ae, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.UnsupportedType, ae.Kind)
}

func TestIngest_RejectsOversizedContent(t *testing.T) {
	p, _ := newTestProcessor(t)

	_, err := p.Ingest(context.Background(), "user1", strings.NewReader(strings.Repeat("x", 100)), models.EvidenceDocument, "a.pdf", "", "", nil, 10)
	require.Error(t, err)
	ae, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.TooLarge, ae.Kind)
}

func TestProcess_DocumentPipelineDetectsViolationAndRecommendsMotion(t *testing.T) {
	p, mock := newTestProcessor(t)

	now := time.Now()
	evRows := sqlmock.NewRows([]string{"id", "owner_user_id", "declared_type", "content_digest", "byte_size",
		"original_name", "storage_path", "status", "case_number", "arrest_date", "involved_parties", "created_at", "completed_at"}).
		AddRow("ev1", "user1", "document", "digestabc", int64(100), "statement.pdf", "/x/statement.pdf", "received", "CASE-1", nil, nil, now, nil)
	mock.ExpectQuery("SELECT (.+) FROM evidence").WithArgs("ev1").WillReturnRows(evRows)

	mock.ExpectExec("UPDATE evidence SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery("SELECT id, day_partition").WithArgs("ev1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "day_partition", "sequence", "actor_user_id", "subject", "subject_content_digest",
			"action", "outcome", "request_fingerprint", "references_event_id", "timestamp"}))

	mock.ExpectExec("INSERT INTO analysis_results").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE evidence SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	expectAuditRecord(mock)

	result, err := p.Process(context.Background(), "ev1", Context{CaseNumber: "CASE-1", AnalyzerProfileVersion: "v1"})
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisCompleted, result.State)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "R1", result.Violations[0].RuleID)
	require.Len(t, result.RecommendedMotions, 1)
	assert.Equal(t, "Motion to Suppress Statement", result.RecommendedMotions[0].Name)
	assert.NotNil(t, result.OCR)
	assert.Nil(t, result.Transcript)
}
