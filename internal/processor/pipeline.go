package processor

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/DTMBX/evident/internal/analyzers/compliance"
	"github.com/DTMBX/evident/internal/analyzers/motions"
	"github.com/DTMBX/evident/internal/analyzers/violations"
	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/cache"
	"github.com/DTMBX/evident/internal/events"
	"github.com/DTMBX/evident/internal/logger"
	"github.com/DTMBX/evident/internal/models"
	"github.com/DTMBX/evident/internal/report"
	"github.com/DTMBX/evident/internal/stages/ocr"
	"github.com/DTMBX/evident/internal/stages/transcription"
)

// stageRetryBackoff builds the exponential backoff policy spec.md §4.1
// specifies for retryable stage failures: base 1s, factor 2, jitter ±25%,
// with a 5-minute ceiling before a missing dependency degrades to fatal.
func stageRetryBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 5 * time.Minute
	return b
}

// maxStageAttempts caps a stage at three attempts total: the first try plus
// two retries, matching "at most three attempts" (spec.md §4.1).
const maxStageAttempts = 2

// isFatal distinguishes malformed-input/integrity errors, which are never
// retried, from everything else, which the caller treats as retryable up to
// the backoff ceiling above.
func isFatal(err error) bool {
	return errors.Is(err, transcription.ErrUnsupportedType) ||
		errors.Is(err, ocr.ErrUnsupportedType) ||
		errors.Is(err, ocr.ErrPageCountMismatch)
}

// Process runs the Evidence Processor's full pipeline for one piece of
// evidence, or returns a cached result if one already exists for this
// (evidence, context) fingerprint (spec.md §4.1 "Process").
func (p *Processor) Process(ctx context.Context, evidenceID string, pctx Context) (*models.AnalysisResult, error) {
	ev, err := p.evidenceDB.Get(ctx, evidenceID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NotFound, "evidence not found", err)
	}

	fingerprint := computeFingerprint(ev.ContentDigest, ev.DeclaredType, pctx.CaseNumber, pctx.AnalyzerProfileVersion)
	cacheKey := cache.AnalysisKey(ev.ID, fingerprint)

	ran := false
	result, err := cache.GetOrCompute[*models.AnalysisResult](ctx, p.cache, cacheKey, p.resultTTL, true, func(ctx context.Context) (*models.AnalysisResult, error) {
		ran = true
		return p.runPipeline(ctx, ev, fingerprint, pctx)
	})
	if err != nil {
		return nil, err
	}

	if !ran {
		p.metrics.Observe("process.cache_hit", "success", 0)
		p.recordAudit(ctx, "system", ev.ID, ev.ContentDigest, "evidence.processed.cached", "success")
	}
	return result, nil
}

// runPipeline executes the ordered stage pipeline while the single-flight
// lease is held. It is the sole function passed to cache.GetOrCompute by
// Process, so it never runs twice concurrently for the same fingerprint.
func (p *Processor) runPipeline(ctx context.Context, ev *models.Evidence, fingerprint string, pctx Context) (*models.AnalysisResult, error) {
	start := time.Now()

	if err := p.evidenceDB.UpdateStatus(ctx, ev.ID, models.EvidenceProcessing); err != nil {
		return nil, apperrors.Wrap(apperrors.DatabaseError, "failed to mark evidence processing", err)
	}

	result := &models.AnalysisResult{
		ID:                     resultID(ev.ID, fingerprint),
		EvidenceID:             ev.ID,
		Fingerprint:            fingerprint,
		AnalyzerProfileVersion: pctx.AnalyzerProfileVersion,
		State:                  models.AnalysisRunning,
		CreatedAt:              time.Now(),
	}

	p.publish(ctx, events.SubjectProcessingStarted, events.ProcessingStartedEvent{
		EventID:                uuid.New().String(),
		Timestamp:              time.Now(),
		EvidenceID:             ev.ID,
		AnalyzerProfileVersion: pctx.AnalyzerProfileVersion,
	})

	var timings []models.StageTiming
	var transcript *models.Transcript
	var ocrResult *models.OCRResult

	switch {
	case ev.DeclaredType.IsAV():
		t, timing, err := p.transcribeWithCache(ctx, ev, fingerprint)
		timings = append(timings, timing)
		if err != nil {
			return p.fail(ctx, ev, result, "transcription", err)
		}
		transcript = t
	case ev.DeclaredType.IsPrintable():
		o, timing, err := p.recognizeWithCache(ctx, ev, fingerprint)
		timings = append(timings, timing)
		if err != nil {
			return p.fail(ctx, ev, result, "ocr", err)
		}
		ocrResult = o
	}

	corpus := buildCorpus(transcript, ocrResult)

	scanStart := time.Now()
	violationList := p.scanner.Scan(corpus, violations.Context{
		CaseNumber:      ev.CaseNumber,
		ArrestDate:      ev.ArrestDate,
		InvolvedParties: ev.InvolvedParties,
	})
	timings = append(timings, models.StageTiming{Stage: "violation_scan", Attempts: 1, DurationMS: time.Since(scanStart).Milliseconds(), Outcome: "ok"})

	custody, err := p.custodyLength(ctx, ev.ID)
	if err != nil {
		return p.fail(ctx, ev, result, "compliance_check", err)
	}

	complianceStart := time.Now()
	complianceReport := compliance.Check(attrsFor(ev, custody), violationList)
	timings = append(timings, models.StageTiming{Stage: "compliance_check", Attempts: 1, DurationMS: time.Since(complianceStart).Milliseconds(), Outcome: "ok"})

	motionStart := time.Now()
	recommendedMotions := motions.Recommend(violationList, complianceReport.Issues, p.motionTemplates)
	timings = append(timings, models.StageTiming{Stage: "motion_recommendation", Attempts: 1, DurationMS: time.Since(motionStart).Milliseconds(), Outcome: "ok"})

	reportStart := time.Now()
	executiveSummary := report.Synthesize(ev, violationList, complianceReport, recommendedMotions)
	timings = append(timings, models.StageTiming{Stage: "report_synthesis", Attempts: 1, DurationMS: time.Since(reportStart).Milliseconds(), Outcome: "ok"})

	completedAt := time.Now()
	result.Transcript = transcript
	result.OCR = ocrResult
	result.Violations = violationList
	result.Compliance = complianceReport
	result.RecommendedMotions = recommendedMotions
	result.Citations = collectCitations(violationList, recommendedMotions)
	result.ExecutiveSummary = executiveSummary
	result.State = models.AnalysisCompleted
	result.Timings = timings
	result.CompletedAt = &completedAt

	if err := p.analysisDB.Upsert(ctx, ev.ID, result); err != nil {
		return p.fail(ctx, ev, result, "persist", err)
	}
	if err := p.evidenceDB.UpdateStatus(ctx, ev.ID, models.EvidenceCompleted); err != nil {
		return p.fail(ctx, ev, result, "persist", err)
	}

	p.publish(ctx, events.SubjectProcessingCompleted, events.ProcessingCompletedEvent{
		EventID:       uuid.New().String(),
		Timestamp:     time.Now(),
		EvidenceID:    ev.ID,
		FindingsCount: len(violationList),
	})
	p.recordAudit(ctx, "system", ev.ID, ev.ContentDigest, "evidence.processed", "success")
	p.metrics.Observe("process.pipeline", "success", time.Since(start))

	return result, nil
}

// fail marks the evidence and analysis result failed, publishes and audits
// the terminal failure, and returns the original error wrapped for the
// caller. Stage outputs already cached under transcript:/ocr:<fingerprint>
// remain valid, so a subsequent reprocess attempt skips straight past them.
func (p *Processor) fail(ctx context.Context, ev *models.Evidence, result *models.AnalysisResult, stage string, cause error) (*models.AnalysisResult, error) {
	result.State = models.AnalysisFailed
	result.FailingStage = stage

	if err := p.evidenceDB.UpdateStatus(ctx, ev.ID, models.EvidenceFailed); err != nil {
		logger.Processor().Error().Err(err).Str("evidence_id", ev.ID).Msg("failed to mark evidence failed")
	}
	if err := p.analysisDB.Upsert(ctx, ev.ID, result); err != nil {
		logger.Processor().Error().Err(err).Str("evidence_id", ev.ID).Msg("failed to persist failed analysis result")
	}

	p.publish(ctx, events.SubjectProcessingFailed, events.ProcessingFailedEvent{
		EventID:    uuid.New().String(),
		Timestamp:  time.Now(),
		EvidenceID: ev.ID,
		Stage:      stage,
		Reason:     cause.Error(),
	})
	p.recordAudit(ctx, "system", ev.ID, ev.ContentDigest, "evidence.processing_failed", "failure")
	p.metrics.Observe("process.pipeline", "failure", 0)

	if ae, ok := apperrors.As(cause); ok {
		return nil, ae
	}
	return nil, apperrors.Wrap(apperrors.Internal, "processing failed at stage "+stage, cause)
}

// transcribeWithCache runs the Transcription Stage behind the
// transcript:<fingerprint> cache entry, retrying retryable provider errors
// with exponential backoff.
func (p *Processor) transcribeWithCache(ctx context.Context, ev *models.Evidence, fingerprint string) (*models.Transcript, models.StageTiming, error) {
	start := time.Now()
	attempts := 0

	t, err := cache.GetOrCompute[models.Transcript](ctx, p.cache, cache.TranscriptKey(fingerprint), p.transcriptTTL, true, func(ctx context.Context) (models.Transcript, error) {
		var result models.Transcript
		op := func() error {
			attempts++
			out, err := p.transcriptionStage.Run(ctx, transcription.Input{
				EvidenceID:   ev.ID,
				MediaPath:    p.blobs.Path(ev.ContentDigest),
				DeclaredType: ev.DeclaredType,
			})
			if err != nil {
				if isFatal(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			result = out
			return nil
		}
		err := backoff.Retry(op, backoff.WithMaxRetries(stageRetryBackoff(), maxStageAttempts))
		return result, err
	})

	outcome := "ok"
	if err != nil {
		outcome = "fatal"
		if !isFatal(err) {
			outcome = "retryable"
		}
	}
	timing := models.StageTiming{Stage: "transcription", Attempts: attempts, DurationMS: time.Since(start).Milliseconds(), Outcome: outcome}
	if err != nil {
		return nil, timing, err
	}
	return &t, timing, nil
}

// recognizeWithCache runs the OCR Stage behind the ocr:<fingerprint> cache
// entry, mirroring transcribeWithCache's retry shape.
func (p *Processor) recognizeWithCache(ctx context.Context, ev *models.Evidence, fingerprint string) (*models.OCRResult, models.StageTiming, error) {
	start := time.Now()
	attempts := 0

	o, err := cache.GetOrCompute[models.OCRResult](ctx, p.cache, cache.OCRKey(fingerprint), p.ocrTTL, true, func(ctx context.Context) (models.OCRResult, error) {
		var result models.OCRResult
		op := func() error {
			attempts++
			out, err := p.ocrStage.Run(ctx, ocr.Input{
				EvidenceID:   ev.ID,
				FilePath:     p.blobs.Path(ev.ContentDigest),
				DeclaredType: ev.DeclaredType,
			})
			if err != nil {
				if isFatal(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			result = out
			return nil
		}
		err := backoff.Retry(op, backoff.WithMaxRetries(stageRetryBackoff(), maxStageAttempts))
		return result, err
	})

	outcome := "ok"
	if err != nil {
		outcome = "fatal"
		if !isFatal(err) {
			outcome = "retryable"
		}
	}
	timing := models.StageTiming{Stage: "ocr", Attempts: attempts, DurationMS: time.Since(start).Milliseconds(), Outcome: outcome}
	if err != nil {
		return nil, timing, err
	}
	return &o, timing, nil
}

// buildCorpus assembles the stage-derived half of the Violation Scanner's
// input: transcript text and OCR text, whichever stages ran, joined so
// downstream offsets stay within one contiguous string. The textual-context
// half (case number, arrest date, involved parties) is folded in by
// Scanner.Scan itself, since it is the scanner's contract that it runs over
// transcript ∪ OCR text ∪ textual context (spec.md §4.1 step 4).
func buildCorpus(transcript *models.Transcript, ocrResult *models.OCRResult) string {
	var parts []string
	if transcript != nil {
		parts = append(parts, transcript.Text)
	}
	if ocrResult != nil {
		parts = append(parts, ocrResult.AggregatedText)
	}
	return strings.Join(parts, "\n")
}

// custodyLength counts the audit events already recorded for this evidence
// id, used as the Compliance Checker's ChainOfCustodyLength attribute.
func (p *Processor) custodyLength(ctx context.Context, evidenceID string) (int, error) {
	if p.auditor == nil {
		return 0, nil
	}
	auditEvents, err := p.auditor.ForSubject(ctx, evidenceID)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.DatabaseError, "failed to read chain of custody", err)
	}
	return len(auditEvents), nil
}

// attrsFor extracts the Compliance Checker's attribute subset from an
// Evidence record. IsOriginal and Authenticated are not yet first-class,
// persisted Evidence fields — provenance metadata beyond content digest is
// out of scope for this service — so they are derived from invariants the
// Evidence Processor already guarantees: every ingested row is treated as
// an original artifact, and its digest was verified incrementally during
// streaming ingestion (internal/blobstore.Store.Put) and never recomputed.
func attrsFor(ev *models.Evidence, custodyLength int) models.Attributes {
	return models.Attributes{
		Type:                 ev.DeclaredType,
		IsOriginal:           true,
		Authenticated:        true,
		ChainOfCustodyLength: custodyLength,
	}
}

// collectCitations merges and sorts every citation referenced by the
// violations and motions in one analysis result.
func collectCitations(violationList []models.Violation, motionList []models.Motion) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(citations []string) {
		for _, c := range citations {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	for _, v := range violationList {
		add(v.Citations)
	}
	for _, m := range motionList {
		add(m.Citations)
	}
	sort.Strings(out)
	return out
}
