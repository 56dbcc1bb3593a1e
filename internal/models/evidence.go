package models

import "time"

// EvidenceType is the declared type of an ingested artifact.
type EvidenceType string

const (
	EvidenceVideo    EvidenceType = "video"
	EvidenceAudio    EvidenceType = "audio"
	EvidenceDocument EvidenceType = "document"
	EvidenceImage    EvidenceType = "image"
	EvidenceOther    EvidenceType = "other"
)

// Valid reports whether t is one of the enumerated evidence types.
func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceVideo, EvidenceAudio, EvidenceDocument, EvidenceImage, EvidenceOther:
		return true
	}
	return false
}

// IsAV reports whether the type routes through the Transcription Stage.
func (t EvidenceType) IsAV() bool {
	return t == EvidenceVideo || t == EvidenceAudio
}

// IsPrintable reports whether the type routes through the OCR Stage.
func (t EvidenceType) IsPrintable() bool {
	return t == EvidenceDocument || t == EvidenceImage
}

// EvidenceStatus tracks the lifecycle of an Evidence row.
type EvidenceStatus string

const (
	EvidenceReceived   EvidenceStatus = "received"
	EvidenceProcessing EvidenceStatus = "processing"
	EvidenceCompleted  EvidenceStatus = "completed"
	EvidenceFailed     EvidenceStatus = "failed"
)

// Evidence is an ingested artifact. The content digest is computed once
// during ingestion and is never recomputed; a mismatch on re-read is a
// fatal IntegrityError (never retried).
type Evidence struct {
	ID              string         `json:"id" db:"id"`
	OwnerUserID     string         `json:"ownerUserId" db:"owner_user_id"`
	DeclaredType    EvidenceType   `json:"declaredType" db:"declared_type"`
	ContentDigest   string         `json:"contentDigest" db:"content_digest"`
	ByteSize        int64          `json:"byteSize" db:"byte_size"`
	OriginalName    string         `json:"originalFilename" db:"original_filename"`
	StoragePath     string         `json:"-" db:"storage_path"`
	Status          EvidenceStatus `json:"status" db:"status"`
	CreatedAt       time.Time      `json:"createdAt" db:"created_at"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
	CaseNumber      string         `json:"caseNumber,omitempty" db:"case_number"`
	ArrestDate      string         `json:"arrestDate,omitempty" db:"arrest_date"`
	InvolvedParties []string       `json:"involvedParties,omitempty" db:"involved_parties"`
}

// Attributes extracts the attribute subset the Compliance Checker consumes.
type Attributes struct {
	Type                EvidenceType
	IsOriginal          bool
	Authenticated       bool
	ChainOfCustodyLength int
}
