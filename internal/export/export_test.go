package export

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/audit"
	"github.com/DTMBX/evident/internal/blobstore"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/models"
)

func newTestBundler(t *testing.T) (*Bundler, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	blobs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)

	b := New(db.NewEvidenceDB(sqlDB), db.NewAnalysisDB(sqlDB), blobs, audit.New(sqlDB, zerolog.Nop()))
	return b, mock
}

func TestBundler_BuildProducesVerifiableZIPWithMatchingDigest(t *testing.T) {
	b, mock := newTestBundler(t)

	digest, _, err := b.blobs.Put(context.Background(), bytes.NewReader([]byte("court exhibit bytes")), "statement.pdf", "document", 1<<20)
	require.NoError(t, err)

	result := &models.AnalysisResult{
		ID:                     "an1",
		EvidenceID:             "ev1",
		Fingerprint:            "fp1",
		AnalyzerProfileVersion: "v1",
		State:                  models.AnalysisCompleted,
		Violations:             []models.Violation{},
		RecommendedMotions:     []models.Motion{},
		Citations:              []string{},
		Compliance:             models.ComplianceReport{Issues: []models.ComplianceIssue{}, Status: models.Compliant},
		CreatedAt:              time.Now(),
	}
	payload, err := json.Marshal(result)
	require.NoError(t, err)

	analysisRows := sqlmock.NewRows([]string{"id", "evidence_id", "fingerprint", "analyzer_profile_version", "state",
		"failing_stage", "result", "created_at", "completed_at"}).
		AddRow("an1", "ev1", "fp1", "v1", "completed", nil, payload, time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM analysis_results").WithArgs("an1").WillReturnRows(analysisRows)

	evRows := sqlmock.NewRows([]string{"id", "owner_user_id", "declared_type", "content_digest", "byte_size",
		"original_name", "storage_path", "status", "case_number", "created_at", "completed_at"}).
		AddRow("ev1", "user1", "document", digest, int64(len("court exhibit bytes")), "statement.pdf", "/x/statement.pdf", "completed", "CASE-1", time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM evidence").WithArgs("ev1").WillReturnRows(evRows)

	mock.ExpectQuery("SELECT id, day_partition").WithArgs("ev1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "day_partition", "sequence", "actor_user_id", "subject", "subject_content_digest",
			"action", "outcome", "request_fingerprint", "references_event_id", "timestamp"}).
			AddRow("evt1", "2026-07-31", int64(1), "user1", "ev1", digest, "evidence.ingest", "success", nil, nil, time.Now()))

	bundle, err := b.Build(context.Background(), "an1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	require.NoError(t, err)

	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		buf := &bytes.Buffer{}
		_, err = buf.ReadFrom(rc)
		rc.Close()
		require.NoError(t, err)
		files[f.Name] = buf.Bytes()
	}
	require.Contains(t, files, "canonical.json")
	require.Contains(t, files, "evidence.bin")
	require.Contains(t, files, "chain.jsonl")
	require.Contains(t, files, "manifest.json")

	require.Equal(t, "court exhibit bytes", string(files["evidence.bin"]))

	var m manifest
	require.NoError(t, json.Unmarshal(files["manifest.json"], &m))
	require.Equal(t, digest, m.ContentDigest)
	require.Equal(t, "fp1", m.Fingerprint)

	wantDigest := sha256.Sum256(concat(files["canonical.json"], files["evidence.bin"], files["chain.jsonl"]))
	require.Equal(t, hex.EncodeToString(wantDigest[:]), m.BundleDigest)
}
