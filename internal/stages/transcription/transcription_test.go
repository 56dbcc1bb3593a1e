package transcription

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/models"
)

func TestRun_RejectsNonAVType(t *testing.T) {
	s := New(LocalProvider{}, nil)
	_, err := s.Run(context.Background(), Input{DeclaredType: models.EvidenceDocument})
	require.Error(t, err)
}

func TestRun_LocalProviderProducesTranscript(t *testing.T) {
	s := New(LocalProvider{}, nil)
	out, err := s.Run(context.Background(), Input{
		EvidenceID:   "ev1",
		MediaPath:    "/blobs/ab/cd/abcd.mp4",
		DeclaredType: models.EvidenceVideo,
	})
	require.NoError(t, err)
	assert.Equal(t, "en", out.Language)
	assert.NotEmpty(t, out.Text)
}

func TestRun_RespectsLanguageHint(t *testing.T) {
	s := New(LocalProvider{}, nil)
	out, err := s.Run(context.Background(), Input{
		EvidenceID:   "ev1",
		MediaPath:    "/blobs/x",
		DeclaredType: models.EvidenceAudio,
		LanguageHint: "fr",
	})
	require.NoError(t, err)
	assert.Equal(t, "fr", out.Language)
}

type erroringProvider struct{}

func (erroringProvider) Transcribe(ctx context.Context, in Input) (models.Transcript, error) {
	return models.Transcript{}, errors.New("provider unavailable")
}

func TestRun_PropagatesProviderError(t *testing.T) {
	s := New(erroringProvider{}, nil)
	_, err := s.Run(context.Background(), Input{DeclaredType: models.EvidenceAudio})
	require.Error(t, err)
}
