package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectConstants(t *testing.T) {
	subjects := map[string]string{
		"EvidenceUploaded":    SubjectEvidenceUploaded,
		"ProcessingStarted":   SubjectProcessingStarted,
		"StageCompleted":      SubjectStageCompleted,
		"ProcessingCompleted": SubjectProcessingCompleted,
		"ProcessingFailed":    SubjectProcessingFailed,
		"QuotaExceeded":       SubjectQuotaExceeded,
	}

	for name, subject := range subjects {
		assert.NotEmpty(t, subject, "subject %s should not be empty", name)
		assert.Contains(t, subject, "evident", "subject %s should be namespaced", name)
	}
}

func TestStageProgressSubjects(t *testing.T) {
	assert.Equal(t, "stage.transcription.progress", SubjectStageTranscriptionProgress)
	assert.Equal(t, "stage.ocr.progress", SubjectStageOCRProgress)
}

func TestDLQSubject(t *testing.T) {
	assert.Equal(t, "evident.dlq.evident.evidence.uploaded", DLQSubject(SubjectEvidenceUploaded))
}
