package processor

import (
	"context"
	"time"

	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/models"
)

// BeginProcessing resolves evidenceID and pctx to the AnalysisResult id
// Process will eventually complete under, and writes a pending row for it
// if nothing has started yet. Callers that need to dispatch Process
// asynchronously (the HTTP surface's task-queue submission) use the
// returned id as the polling handle before the pipeline has run at all.
// cached reports whether a result already exists in a terminal state, in
// which case the caller should skip queuing and fetch it with GetResult.
func (p *Processor) BeginProcessing(ctx context.Context, evidenceID string, pctx Context) (id string, cached bool, err error) {
	ev, err := p.evidenceDB.Get(ctx, evidenceID)
	if err != nil {
		return "", false, apperrors.Wrap(apperrors.NotFound, "evidence not found", err)
	}

	fingerprint := computeFingerprint(ev.ContentDigest, ev.DeclaredType, pctx.CaseNumber, pctx.AnalyzerProfileVersion)
	id = resultID(ev.ID, fingerprint)

	if existing, err := p.analysisDB.GetByFingerprint(ctx, ev.ID, fingerprint); err == nil && existing != nil {
		done := existing.State == models.AnalysisCompleted || existing.State == models.AnalysisFailed
		return existing.ID, done, nil
	}

	pending := &models.AnalysisResult{
		ID:                     id,
		EvidenceID:             ev.ID,
		Fingerprint:            fingerprint,
		AnalyzerProfileVersion: pctx.AnalyzerProfileVersion,
		State:                  models.AnalysisPending,
		CreatedAt:              time.Now(),
	}
	if err := p.analysisDB.Upsert(ctx, ev.ID, pending); err != nil {
		return "", false, apperrors.Wrap(apperrors.DatabaseError, "failed to record pending analysis", err)
	}
	return id, false, nil
}

// GetResult fetches a previously created AnalysisResult by its own id, for
// the polling route (spec.md §6.1's GET /api/analysis/{id}).
func (p *Processor) GetResult(ctx context.Context, id string) (*models.AnalysisResult, error) {
	result, err := p.analysisDB.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NotFound, "analysis result not found", err)
	}
	return result, nil
}
