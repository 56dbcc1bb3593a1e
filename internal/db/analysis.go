package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DTMBX/evident/internal/models"
	"github.com/google/uuid"
)

// AnalysisDB handles database operations for analysis results. The full
// result is stored as JSONB so the cache-on-disk representation and the
// database representation share one serialization (internal/report's
// canonical JSON encoder).
type AnalysisDB struct {
	db *sql.DB
}

// NewAnalysisDB creates a new AnalysisDB bound to an open connection pool.
func NewAnalysisDB(db *sql.DB) *AnalysisDB {
	return &AnalysisDB{db: db}
}

// Upsert stores or replaces the analysis result for (evidenceID, fingerprint).
// Re-running the same fingerprint for the same evidence is idempotent —
// this is the database-backed half of the Evidence Processor's
// get-or-compute cache (the other half lives in internal/cache).
func (a *AnalysisDB) Upsert(ctx context.Context, evidenceID string, result *models.AnalysisResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO analysis_results (id, evidence_id, fingerprint, analyzer_profile_version, state, failing_stage, result, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (evidence_id, fingerprint) DO UPDATE SET
			state = EXCLUDED.state,
			failing_stage = EXCLUDED.failing_stage,
			result = EXCLUDED.result,
			completed_at = EXCLUDED.completed_at
	`, result.ID, evidenceID, result.Fingerprint, result.AnalyzerProfileVersion,
		string(result.State), result.FailingStage, payload, result.CreatedAt, result.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert analysis result: %w", err)
	}
	return nil
}

func scanAnalysis(row *sql.Row) (*models.AnalysisResult, error) {
	var payload []byte
	var discardID, discardEvidenceID, discardFingerprint, discardProfile, discardState string
	var discardFailingStage sql.NullString
	var discardCreatedAt time.Time
	var discardCompletedAt sql.NullTime

	err := row.Scan(&discardID, &discardEvidenceID, &discardFingerprint, &discardProfile,
		&discardState, &discardFailingStage, &payload, &discardCreatedAt, &discardCompletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("analysis result not found")
		}
		return nil, err
	}

	result := &models.AnalysisResult{}
	if err := json.Unmarshal(payload, result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis result: %w", err)
	}
	return result, nil
}

const analysisSelect = `
	SELECT id, evidence_id, fingerprint, analyzer_profile_version, state, failing_stage, result, created_at, completed_at
	FROM analysis_results
`

// GetByFingerprint retrieves a cached result for (evidenceID, fingerprint),
// if one exists — the database-level single-flight hit path.
func (a *AnalysisDB) GetByFingerprint(ctx context.Context, evidenceID, fingerprint string) (*models.AnalysisResult, error) {
	row := a.db.QueryRowContext(ctx, analysisSelect+" WHERE evidence_id = $1 AND fingerprint = $2", evidenceID, fingerprint)
	return scanAnalysis(row)
}

// GetLatest retrieves the most recently completed analysis for a piece of evidence.
func (a *AnalysisDB) GetLatest(ctx context.Context, evidenceID string) (*models.AnalysisResult, error) {
	row := a.db.QueryRowContext(ctx, analysisSelect+" WHERE evidence_id = $1 ORDER BY created_at DESC LIMIT 1", evidenceID)
	return scanAnalysis(row)
}

// GetByID retrieves one analysis result by its own id, for the report
// rendering route which addresses a specific past run rather than "latest".
func (a *AnalysisDB) GetByID(ctx context.Context, id string) (*models.AnalysisResult, error) {
	row := a.db.QueryRowContext(ctx, analysisSelect+" WHERE id = $1", id)
	return scanAnalysis(row)
}
