package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvidenceTypeValid_RejectsUnknownType(t *testing.T) {
	assert.True(t, EvidenceVideo.Valid())
	assert.True(t, EvidenceOther.Valid())
	assert.False(t, EvidenceType("spreadsheet").Valid())
}

func TestEvidenceTypeIsAV_MatchesVideoAndAudioOnly(t *testing.T) {
	assert.True(t, EvidenceVideo.IsAV())
	assert.True(t, EvidenceAudio.IsAV())
	assert.False(t, EvidenceDocument.IsAV())
	assert.False(t, EvidenceImage.IsAV())
}

func TestEvidenceTypeIsPrintable_MatchesDocumentAndImageOnly(t *testing.T) {
	assert.True(t, EvidenceDocument.IsPrintable())
	assert.True(t, EvidenceImage.IsPrintable())
	assert.False(t, EvidenceVideo.IsPrintable())
	assert.False(t, EvidenceOther.IsPrintable())
}
