// Package processor implements the Evidence Processor (spec.md §4.1): the
// orchestrator that takes one ingested artifact through fingerprinting,
// cache-consult-then-single-flight-lease, stage dispatch, analysis, and
// report synthesis, and persists the result. Wiring style follows the
// teacher's explicit constructor-injection convention (NewEnforcer(userDB,
// groupDB), NewAPIKeyHandler(database)) — no package-level singletons.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/DTMBX/evident/internal/analyzers/violations"
	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/audit"
	"github.com/DTMBX/evident/internal/blobstore"
	"github.com/DTMBX/evident/internal/cache"
	"github.com/DTMBX/evident/internal/config"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/events"
	"github.com/DTMBX/evident/internal/logger"
	"github.com/DTMBX/evident/internal/metrics"
	"github.com/DTMBX/evident/internal/analyzers/motions"
	"github.com/DTMBX/evident/internal/models"
	"github.com/DTMBX/evident/internal/stages/ocr"
	"github.com/DTMBX/evident/internal/stages/transcription"
)

// Context carries the request-scoped facts that participate in the
// fingerprint and in rule annotation. Nothing outside this subset may
// affect either (spec.md §4.1).
type Context struct {
	CaseNumber             string
	AnalyzerProfileVersion string
}

// Processor ties together every Service Substrate component and analyzer
// stage into the Ingest/Process/Report operation set.
type Processor struct {
	evidenceDB *db.EvidenceDB
	analysisDB *db.AnalysisDB
	blobs      *blobstore.Store
	cache      cache.Cache
	bus        events.Bus
	metrics    *metrics.Collector
	auditor    *audit.Logger

	transcriptionStage *transcription.Stage
	ocrStage           *ocr.Stage
	scanner            *violations.Scanner
	motionTemplates    []motions.Template

	transcriptTTL  time.Duration
	ocrTTL         time.Duration
	resultTTL      time.Duration
	maxUploadBytes int64
}

// New builds a Processor from its fully-constructed dependencies. cfg
// supplies the TTL and upload-size defaults from spec.md §6.4.
func New(
	evidenceDB *db.EvidenceDB,
	analysisDB *db.AnalysisDB,
	blobs *blobstore.Store,
	c cache.Cache,
	bus events.Bus,
	coll *metrics.Collector,
	auditor *audit.Logger,
	transcriptionStage *transcription.Stage,
	ocrStage *ocr.Stage,
	scanner *violations.Scanner,
	motionTemplates []motions.Template,
	cfg *config.Config,
) *Processor {
	return &Processor{
		evidenceDB:         evidenceDB,
		analysisDB:         analysisDB,
		blobs:              blobs,
		cache:              c,
		bus:                bus,
		metrics:            coll,
		auditor:            auditor,
		transcriptionStage: transcriptionStage,
		ocrStage:           ocrStage,
		scanner:            scanner,
		motionTemplates:    motionTemplates,
		transcriptTTL:      time.Duration(cfg.TranscriptTTLSeconds) * time.Second,
		ocrTTL:             time.Duration(cfg.OCRTTLSeconds) * time.Second,
		resultTTL:          time.Duration(cfg.ResultTTLSeconds) * time.Second,
		maxUploadBytes:     cfg.MaxUploadBytes,
	}
}

// Ingest streams r into the Content Store, deduplicating by content digest,
// and writes a new received Evidence row (spec.md §4.1 "Ingest"). arrestDate
// and involvedParties are the remaining facets of the Violation Scanner's
// textual context (spec.md §4.4); both are optional.
// maxBytesOverride, when positive, replaces the configured default — the
// caller (the Access & Quota Gate) resolves it from the owner's tier.
func (p *Processor) Ingest(ctx context.Context, ownerUserID string, r io.Reader, declaredType models.EvidenceType, originalFilename, caseNumber, arrestDate string, involvedParties []string, maxBytesOverride int64) (*models.Evidence, error) {
	if !declaredType.Valid() {
		return nil, apperrors.New(apperrors.UnsupportedType, fmt.Sprintf("declared type %q is not supported", declaredType))
	}

	maxBytes := p.maxUploadBytes
	if maxBytesOverride > 0 {
		maxBytes = maxBytesOverride
	}

	digest, size, err := p.blobs.Put(ctx, r, originalFilename, string(declaredType), maxBytes)
	if err != nil {
		if errors.Is(err, blobstore.ErrTooLarge) {
			return nil, apperrors.New(apperrors.TooLarge, fmt.Sprintf("content exceeds the %d byte limit", maxBytes))
		}
		return nil, apperrors.Wrap(apperrors.IntegrityError, "upload stream aborted before completion", err)
	}

	ev := &models.Evidence{
		ID:            uuid.New().String(),
		OwnerUserID:   ownerUserID,
		DeclaredType:  declaredType,
		ContentDigest: digest,
		ByteSize:      size,
		OriginalName:  originalFilename,
		StoragePath:   p.blobs.Path(digest),
		Status:          models.EvidenceReceived,
		CreatedAt:       time.Now(),
		CaseNumber:      caseNumber,
		ArrestDate:      arrestDate,
		InvolvedParties: involvedParties,
	}
	if err := p.evidenceDB.Create(ctx, ev); err != nil {
		return nil, apperrors.Wrap(apperrors.DatabaseError, "failed to record ingested evidence", err)
	}

	p.publish(ctx, events.SubjectEvidenceUploaded, events.EvidenceUploadedEvent{
		EventID:     uuid.New().String(),
		Timestamp:   time.Now(),
		EvidenceID:  ev.ID,
		OwnerUserID: ownerUserID,
		CaseNumber:  caseNumber,
		ContentType: string(declaredType),
		SizeBytes:   size,
		Fingerprint: digest,
	})

	p.recordAudit(ctx, ownerUserID, ev.ID, digest, "evidence.ingest", "success")

	return ev, nil
}

func (p *Processor) publish(ctx context.Context, subject string, event any) {
	if p.bus == nil || !p.bus.IsEnabled() {
		return
	}
	if err := p.bus.Publish(ctx, subject, event); err != nil {
		logger.Processor().Error().Err(err).Str("subject", subject).Msg("failed to publish event")
	}
}

func (p *Processor) recordAudit(ctx context.Context, actorUserID, subject, digest, action, outcome string) {
	if p.auditor == nil {
		return
	}
	if actorUserID == "" {
		actorUserID = "system"
	}
	if _, err := p.auditor.Record(ctx, audit.Entry{
		ActorUserID:          actorUserID,
		Subject:              subject,
		SubjectContentDigest: digest,
		Action:               action,
		Outcome:              outcome,
	}); err != nil {
		logger.Processor().Error().Err(err).Str("subject", subject).Str("action", action).Msg("failed to record audit event")
	}
}
