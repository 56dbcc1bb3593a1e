// Package audit implements the append-only Chain-of-Custody & Integrity
// Layer (spec.md §4.9): every access, transformation, and decision made
// about a piece of evidence is recorded as an immutable event, ordered by
// a per-day monotonic sequence number assigned transactionally so
// concurrent writers can never collide or reorder.
//
// There is no UPDATE or DELETE path on audit_events. A mistaken or
// disputed entry is corrected by writing a new event whose
// ReferencesEventID names the original — the history of the correction
// is itself part of the record.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/DTMBX/evident/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger appends events to the audit_events table.
type Logger struct {
	db  *sql.DB
	log zerolog.Logger
}

// New creates an audit Logger over an open database connection.
func New(db *sql.DB, log zerolog.Logger) *Logger {
	return &Logger{db: db, log: log.With().Str("component", "audit").Logger()}
}

// Entry describes one event to append. ActorUserID is "system" for
// background/automated actions.
type Entry struct {
	ActorUserID          string
	Subject              string
	SubjectContentDigest string
	Action               string
	Outcome              string
	RequestFingerprint   string
	ReferencesEventID    string
}

// Record appends one audit event inside its own transaction: it selects
// the next sequence number for today's partition and inserts the event
// atomically, so two concurrent writers never receive the same sequence.
func (l *Logger) Record(ctx context.Context, e Entry) (*models.AuditEvent, error) {
	dayPartition := time.Now().UTC().Format("2006-01-02")

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	var nextSeq int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) + 1 FROM audit_events WHERE day_partition = $1
	`, dayPartition).Scan(&nextSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to compute next sequence: %w", err)
	}

	event := &models.AuditEvent{
		ID:                   uuid.New().String(),
		DayPartition:         dayPartition,
		Sequence:             nextSeq,
		ActorUserID:          e.ActorUserID,
		Subject:              e.Subject,
		SubjectContentDigest: e.SubjectContentDigest,
		Action:               e.Action,
		Outcome:              e.Outcome,
		RequestFingerprint:   e.RequestFingerprint,
		ReferencesEventID:    e.ReferencesEventID,
		Timestamp:            time.Now(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_events (id, day_partition, sequence, actor_user_id, subject, subject_content_digest,
			action, outcome, request_fingerprint, references_event_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, event.ID, event.DayPartition, event.Sequence, event.ActorUserID, event.Subject, event.SubjectContentDigest,
		event.Action, event.Outcome, event.RequestFingerprint, event.ReferencesEventID, event.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit audit transaction: %w", err)
	}

	l.log.Debug().Str("subject", event.Subject).Str("action", event.Action).Int64("sequence", event.Sequence).Msg("audit event recorded")
	return event, nil
}

// Correct records a correction event referencing an earlier, disputed one.
func (l *Logger) Correct(ctx context.Context, originalEventID, actorUserID, reason string) (*models.AuditEvent, error) {
	var subject string
	err := l.db.QueryRowContext(ctx, `SELECT subject FROM audit_events WHERE id = $1`, originalEventID).Scan(&subject)
	if err != nil {
		return nil, fmt.Errorf("original event not found: %w", err)
	}

	return l.Record(ctx, Entry{
		ActorUserID:       actorUserID,
		Subject:           subject,
		Action:            "correction",
		Outcome:           reason,
		ReferencesEventID: originalEventID,
	})
}

// ForSubject returns every event recorded for a subject (an evidence ID,
// user ID, or API key ID), ordered by day partition and sequence — this
// is the chain the ZIP export (internal/export) bundles verbatim.
func (l *Logger) ForSubject(ctx context.Context, subject string) ([]*models.AuditEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, day_partition, sequence, actor_user_id, subject, subject_content_digest,
			action, outcome, request_fingerprint, references_event_id, timestamp
		FROM audit_events WHERE subject = $1 ORDER BY day_partition ASC, sequence ASC
	`, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*models.AuditEvent{}
	for rows.Next() {
		e := &models.AuditEvent{}
		var digest, fingerprint, references sql.NullString
		if err := rows.Scan(&e.ID, &e.DayPartition, &e.Sequence, &e.ActorUserID, &e.Subject, &digest,
			&e.Action, &e.Outcome, &fingerprint, &references, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit event row: %w", err)
		}
		e.SubjectContentDigest = digest.String
		e.RequestFingerprint = fingerprint.String
		e.ReferencesEventID = references.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Verify recomputes a digest over the ordered event chain for a day
// partition range, returning both the ordered events themselves and the
// digest, for comparison against one recorded at export time to detect
// any row that was altered outside this package (e.g. by a direct
// database edit).
func (l *Logger) Verify(ctx context.Context, fromPartition, toPartition string) ([]*models.AuditEvent, string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, day_partition, sequence, actor_user_id, subject, action, outcome, timestamp
		FROM audit_events
		WHERE day_partition BETWEEN $1 AND $2
		ORDER BY day_partition ASC, sequence ASC
	`, fromPartition, toPartition)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	h := sha256.New()
	events := []*models.AuditEvent{}
	for rows.Next() {
		e := &models.AuditEvent{}
		if err := rows.Scan(&e.ID, &e.DayPartition, &e.Sequence, &e.ActorUserID, &e.Subject, &e.Action, &e.Outcome, &e.Timestamp); err != nil {
			return nil, "", fmt.Errorf("failed to scan audit event row: %w", err)
		}
		fmt.Fprintf(h, "%s|%s|%d|%s|%s|%s|%s|%s\n", e.ID, e.DayPartition, e.Sequence, e.ActorUserID, e.Subject, e.Action, e.Outcome, e.Timestamp.UTC().Format(time.RFC3339Nano))
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	return events, hex.EncodeToString(h.Sum(nil)), nil
}
