package ocr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/models"
)

func TestRun_RejectsNonPrintableType(t *testing.T) {
	s := New(LocalProvider{}, nil)
	_, err := s.Run(context.Background(), Input{DeclaredType: models.EvidenceVideo})
	require.Error(t, err)
}

func TestRun_LocalProviderSinglePageForImage(t *testing.T) {
	s := New(LocalProvider{}, nil)
	out, err := s.Run(context.Background(), Input{
		EvidenceID:   "ev1",
		FilePath:     "/blobs/ab/cd/abcd.png",
		DeclaredType: models.EvidenceImage,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.PageCount)
	assert.Equal(t, 1, out.Pages[0].PageNumber)
}

type multiPageProvider struct{}

func (multiPageProvider) Recognize(ctx context.Context, in Input) ([]models.OCRPage, error) {
	return []models.OCRPage{
		{PageNumber: 2, Text: "second"},
		{PageNumber: 1, Text: "first"},
	}, nil
}

func TestRun_SortsPagesAndJoinsWithFormFeed(t *testing.T) {
	s := New(multiPageProvider{}, nil)
	out, err := s.Run(context.Background(), Input{DeclaredType: models.EvidenceDocument})
	require.NoError(t, err)
	require.Len(t, out.Pages, 2)
	assert.Equal(t, 1, out.Pages[0].PageNumber)
	assert.Equal(t, 2, out.Pages[1].PageNumber)
	assert.Equal(t, "first\x0csecond", out.AggregatedText)
}

type wrongPageCountProvider struct{}

func (wrongPageCountProvider) Recognize(ctx context.Context, in Input) ([]models.OCRPage, error) {
	return []models.OCRPage{{PageNumber: 1}, {PageNumber: 2}}, nil
}

func TestRun_ImageMustYieldExactlyOnePage(t *testing.T) {
	s := New(wrongPageCountProvider{}, nil)
	_, err := s.Run(context.Background(), Input{DeclaredType: models.EvidenceImage})
	require.Error(t, err)
}
