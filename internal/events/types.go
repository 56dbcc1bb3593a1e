// Package events implements the Event Bus: in-process pub/sub by default,
// optionally backed by NATS for multi-instance deployments. Evidence
// Processor stages and the Access & Quota Gate publish lifecycle events;
// the progress WebSocket and housekeeping jobs subscribe to them.
package events

import "time"

// EvidenceUploadedEvent is published once an upload has been persisted and
// deduplicated against the owner's existing evidence by content digest.
type EvidenceUploadedEvent struct {
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	EvidenceID  string    `json:"evidence_id"`
	OwnerUserID string    `json:"owner_user_id"`
	CaseNumber  string    `json:"case_number,omitempty"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Fingerprint string    `json:"fingerprint"`
}

// ProcessingStartedEvent is published when the Evidence Processor begins
// running the stage pipeline for a piece of evidence.
type ProcessingStartedEvent struct {
	EventID                string    `json:"event_id"`
	Timestamp              time.Time `json:"timestamp"`
	EvidenceID             string    `json:"evidence_id"`
	AnalyzerProfileVersion string    `json:"analyzer_profile_version"`
}

// StageProgressEvent reports incremental progress from a long-running
// stage (transcription, OCR). Publishers are expected to rate-limit these
// to at most one every 10 seconds per evidence id.
type StageProgressEvent struct {
	EventID         string    `json:"event_id"`
	Timestamp       time.Time `json:"timestamp"`
	EvidenceID      string    `json:"evidence_id"`
	Stage           string    `json:"stage"`
	PercentComplete float64   `json:"percent_complete"`
	Message         string    `json:"message,omitempty"`
}

// StageCompletedEvent is published when a single pipeline stage finishes,
// successfully or not.
type StageCompletedEvent struct {
	EventID    string    `json:"event_id"`
	Timestamp  time.Time `json:"timestamp"`
	EvidenceID string    `json:"evidence_id"`
	Stage      string    `json:"stage"`
	DurationMS int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
}

// ProcessingCompletedEvent is published when the full pipeline reaches a
// terminal, successful state and an analysis result has been persisted.
type ProcessingCompletedEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	EvidenceID    string    `json:"evidence_id"`
	FindingsCount int       `json:"findings_count"`
}

// ProcessingFailedEvent is published when the pipeline reaches a terminal
// failure before producing an analysis result.
type ProcessingFailedEvent struct {
	EventID    string    `json:"event_id"`
	Timestamp  time.Time `json:"timestamp"`
	EvidenceID string    `json:"evidence_id"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason"`
}

// QuotaExceededEvent is published by the Access & Quota Gate when a
// charge is denied because a tier limit has been reached.
type QuotaExceededEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Tier      string    `json:"tier"`
	Counter   string    `json:"counter"`
}
