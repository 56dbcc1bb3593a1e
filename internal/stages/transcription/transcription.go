// Package transcription implements the Transcription Stage: media in the
// Content Store goes in, a text transcript with per-speaker segments comes
// out. The stage never mutates its input and never reads outside the path
// it is given.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DTMBX/evident/internal/events"
	"github.com/DTMBX/evident/internal/logger"
	"github.com/DTMBX/evident/internal/models"
	"github.com/google/uuid"
)

// DefaultWallClockLimit is the per-call hard ceiling on stage runtime.
const DefaultWallClockLimit = 30 * time.Minute

// progressInterval is the maximum gap between progress events while a
// transcription is running.
const progressInterval = 10 * time.Second

// ErrUnsupportedType is returned by Run when the declared type does not
// route through the Transcription Stage. Callers (internal/processor)
// treat it as fatal and never retry.
var ErrUnsupportedType = errors.New("transcription: declared type is not audio/video")

// Input describes one transcription request.
type Input struct {
	EvidenceID   string
	MediaPath    string
	DeclaredType models.EvidenceType
	LanguageHint string
}

// Provider performs the actual speech-to-text work. LocalProvider is the
// only implementation carried here; a real deployment wires an external
// ASR vendor behind the same interface.
type Provider interface {
	Transcribe(ctx context.Context, in Input) (models.Transcript, error)
}

// Stage runs a Provider under the wall-clock limit and emits progress
// events on the Event Bus while it works.
type Stage struct {
	provider        Provider
	bus             events.Bus
	wallClockLimit  time.Duration
}

// New builds a Stage over the given Provider and Event Bus. A nil bus is
// permitted; progress events are simply not published.
func New(provider Provider, bus events.Bus) *Stage {
	return &Stage{provider: provider, bus: bus, wallClockLimit: DefaultWallClockLimit}
}

// Run executes the stage for one piece of evidence, enforcing the wall
// clock limit and reporting progress at most once every 10 seconds.
func (s *Stage) Run(ctx context.Context, in Input) (models.Transcript, error) {
	if !in.DeclaredType.IsAV() {
		return models.Transcript{}, fmt.Errorf("%w: %q", ErrUnsupportedType, in.DeclaredType)
	}

	ctx, cancel := context.WithTimeout(ctx, s.wallClockLimit)
	defer cancel()

	stop := s.startProgressReporter(ctx, in.EvidenceID)
	defer stop()

	transcript, err := s.provider.Transcribe(ctx, in)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return models.Transcript{}, fmt.Errorf("transcription: exceeded wall clock limit of %s: %w", s.wallClockLimit, err)
		}
		return models.Transcript{}, err
	}
	return transcript, nil
}

// startProgressReporter publishes stage.transcription.progress on a ticker
// until the returned stop function is called, matching the teacher's
// ticker-driven background monitor idiom.
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
				s.publishProgress(evidenceID, "transcription in progress")
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
		Stage:      "transcription",
		Message:    message,
	}
	if err := s.bus.Publish(context.Background(), events.SubjectStageTranscriptionProgress, event); err != nil {
		logger.Stages().Error().Err(err).Str("evidence_id", evidenceID).Msg("failed to publish transcription progress")
	}
}

// LocalProvider is a deterministic stub: it does no real ASR and instead
// derives a plausible transcript from the media path so the pipeline, cache
// keys, and downstream analyzers can be exercised without an external
// vendor. It is also the default when no vendor is configured.
type LocalProvider struct{}

// Transcribe implements Provider.
func (LocalProvider) Transcribe(ctx context.Context, in Input) (models.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return models.Transcript{}, err
	}

	lang := in.LanguageHint
	if lang == "" {
		lang = "en" // auto-detect stub: always resolves to English
	}

	text := fmt.Sprintf("[transcript unavailable: local stub for %s]", strings.TrimSpace(in.MediaPath))
	return models.Transcript{
		Text:              text,
		Language:          lang,
		DurationSeconds:   0,
		AverageConfidence: 0,
		Segments:          nil,
	}, nil
}
