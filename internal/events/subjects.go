package events

// Subject naming: "evident.<domain>.<action>", except for the two stage
// progress subjects the progress WebSocket filters on directly, which
// keep the bare "stage.<name>.progress" form.
const (
	SubjectEvidenceUploaded    = "evident.evidence.uploaded"
	SubjectProcessingStarted   = "evident.processing.started"
	SubjectStageCompleted      = "evident.stage.completed"
	SubjectProcessingCompleted = "evident.processing.completed"
	SubjectProcessingFailed    = "evident.processing.failed"
	SubjectQuotaExceeded       = "evident.quota.exceeded"

	SubjectStageTranscriptionProgress = "stage.transcription.progress"
	SubjectStageOCRProgress           = "stage.ocr.progress"

	// SubjectDLQPrefix namespaces events a handler panicked or permanently
	// failed on, for later inspection.
	SubjectDLQPrefix = "evident.dlq"
)

// DLQSubject returns the dead-letter subject for a given subject.
func DLQSubject(subject string) string {
	return SubjectDLQPrefix + "." + subject
}
