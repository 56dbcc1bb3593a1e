package models

import "time"

// AuditEvent is one append-only log line. Events are never updated or
// deleted; corrections are new events with Action == "correction" whose
// ReferencesEventID names the event being corrected.
type AuditEvent struct {
	ID                string    `json:"id" db:"id"`
	DayPartition      string    `json:"dayPartition" db:"day_partition"` // YYYY-MM-DD
	Sequence          int64     `json:"sequence" db:"sequence"`
	ActorUserID       string    `json:"actorUserId" db:"actor_user_id"` // "system" for system actions
	Subject           string    `json:"subject" db:"subject"`           // evidence id, user id, or api-key id
	SubjectContentDigest string `json:"subjectContentDigest,omitempty" db:"subject_content_digest"`
	Action            string    `json:"action" db:"action"`
	Outcome           string    `json:"outcome" db:"outcome"`
	RequestFingerprint string   `json:"requestFingerprint,omitempty" db:"request_fingerprint"`
	ReferencesEventID string    `json:"referencesEventId,omitempty" db:"references_event_id"`
	Timestamp         time.Time `json:"timestamp" db:"timestamp"`
}
