// Package ocr implements the OCR Stage: documents and images in the
// Content Store go in, page-ordered text comes out. Mirrors the shape of
// internal/stages/transcription for symmetry between the two media-reading
// stages.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/DTMBX/evident/internal/events"
	"github.com/DTMBX/evident/internal/logger"
	"github.com/DTMBX/evident/internal/models"
	"github.com/google/uuid"
)

// formFeed is the only legal inter-page separator in aggregated text.
const formFeed = "\f"

const progressInterval = 10 * time.Second

// ErrUnsupportedType is returned by Run when the declared type does not
// route through the OCR Stage.
var ErrUnsupportedType = errors.New("ocr: declared type is not document/image")

// ErrPageCountMismatch is returned by Run when an image input yields a page
// count other than exactly one.
var ErrPageCountMismatch = errors.New("ocr: image input must yield exactly one page")

// Input describes one OCR request.
type Input struct {
	EvidenceID   string
	FilePath     string
	DeclaredType models.EvidenceType
}

// Provider performs the actual page recognition. LocalProvider is the
// only implementation carried here; a real deployment wires an external
// OCR vendor behind the same interface.
type Provider interface {
	Recognize(ctx context.Context, in Input) ([]models.OCRPage, error)
}

// Stage runs a Provider and assembles its page output into an OCRResult,
// reporting progress on the Event Bus while it works.
type Stage struct {
	provider Provider
	bus      events.Bus
}

// New builds a Stage over the given Provider and Event Bus. A nil bus is
// permitted; progress events are simply not published.
func New(provider Provider, bus events.Bus) *Stage {
	return &Stage{provider: provider, bus: bus}
}

// Run executes the stage for one piece of evidence. Pages are sorted into
// strictly increasing page-number order before being joined; an image
// input is expected to yield exactly one page.
func (s *Stage) Run(ctx context.Context, in Input) (models.OCRResult, error) {
	if !in.DeclaredType.IsPrintable() {
		return models.OCRResult{}, fmt.Errorf("%w: %q", ErrUnsupportedType, in.DeclaredType)
	}

	stop := s.startProgressReporter(ctx, in.EvidenceID)
	defer stop()

	pages, err := s.provider.Recognize(ctx, in)
	if err != nil {
		return models.OCRResult{}, err
	}

	if in.DeclaredType == models.EvidenceImage && len(pages) != 1 {
		return models.OCRResult{}, fmt.Errorf("%w: got %d", ErrPageCountMismatch, len(pages))
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })

	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}

	return models.OCRResult{
		Pages:          pages,
		AggregatedText: strings.Join(texts, formFeed),
		PageCount:      len(pages),
	}, nil
}

func (s *Stage) startProgressReporter(ctx context.Context, evidenceID string) (stop func()) {
	if s.bus == nil || !s.bus.IsEnabled() {
		return func() {}
	}

	ticker := time.NewTicker(progressInterval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				s.publishProgress(evidenceID, "ocr in progress")
			}
		}
	}()

	return func() { close(done) }
}

func (s *Stage) publishProgress(evidenceID, message string) {
	event := events.StageProgressEvent{
		EventID:    uuid.New().String(),
		Timestamp:  time.Now(),
		EvidenceID: evidenceID,
		Stage:      "ocr",
		Message:    message,
	}
	if err := s.bus.Publish(context.Background(), events.SubjectStageOCRProgress, event); err != nil {
		logger.Stages().Error().Err(err).Str("evidence_id", evidenceID).Msg("failed to publish ocr progress")
	}
}

// LocalProvider is a deterministic stub: it performs no real OCR and
// instead derives a single plausible page (or one page per declared
// document, trivially one) from the file path, so the pipeline, cache
// keys, and downstream analyzers can be exercised without an external
// vendor. It is also the default when no vendor is configured.
type LocalProvider struct{}

// Recognize implements Provider.
func (LocalProvider) Recognize(ctx context.Context, in Input) ([]models.OCRPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return []models.OCRPage{
		{
			PageNumber:        1,
			Text:              fmt.Sprintf("[ocr unavailable: local stub for %s]", strings.TrimSpace(in.FilePath)),
			AverageConfidence: 0,
		},
	}, nil
}
