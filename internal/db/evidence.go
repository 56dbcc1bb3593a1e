package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/DTMBX/evident/internal/models"
)

// EvidenceDB handles database operations for ingested evidence records.
type EvidenceDB struct {
	db *sql.DB
}

// NewEvidenceDB creates a new EvidenceDB bound to an open connection pool.
func NewEvidenceDB(db *sql.DB) *EvidenceDB {
	return &EvidenceDB{db: db}
}

// Create inserts a new evidence record, assigned by the caller (evidence
// IDs are content-derived — see internal/processor).
func (e *EvidenceDB) Create(ctx context.Context, ev *models.Evidence) error {
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO evidence (id, owner_user_id, declared_type, content_digest, byte_size,
			original_name, storage_path, status, case_number, arrest_date, involved_parties, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, ev.ID, ev.OwnerUserID, string(ev.DeclaredType), ev.ContentDigest, ev.ByteSize,
		ev.OriginalName, ev.StoragePath, string(ev.Status), ev.CaseNumber,
		ev.ArrestDate, pq.StringArray(ev.InvolvedParties), ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create evidence record: %w", err)
	}
	return nil
}

const evidenceSelect = `
	SELECT id, owner_user_id, declared_type, content_digest, byte_size,
		original_name, storage_path, status, case_number, arrest_date, involved_parties,
		created_at, completed_at
	FROM evidence
`

func scanEvidence(row *sql.Row) (*models.Evidence, error) {
	ev := &models.Evidence{}
	var declaredType, status string
	var arrestDate sql.NullString
	var involvedParties pq.StringArray
	var completedAt sql.NullTime
	err := row.Scan(&ev.ID, &ev.OwnerUserID, &declaredType, &ev.ContentDigest, &ev.ByteSize,
		&ev.OriginalName, &ev.StoragePath, &status, &ev.CaseNumber, &arrestDate, &involvedParties,
		&ev.CreatedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("evidence not found")
		}
		return nil, err
	}
	ev.DeclaredType = models.EvidenceType(declaredType)
	ev.Status = models.EvidenceStatus(status)
	ev.ArrestDate = arrestDate.String
	ev.InvolvedParties = []string(involvedParties)
	if completedAt.Valid {
		ev.CompletedAt = &completedAt.Time
	}
	return ev, nil
}

// Get retrieves one evidence record by ID.
func (e *EvidenceDB) Get(ctx context.Context, id string) (*models.Evidence, error) {
	row := e.db.QueryRowContext(ctx, evidenceSelect+" WHERE id = $1", id)
	return scanEvidence(row)
}

// FindByOwnerAndDigest looks up an existing evidence record for dedup —
// the same user re-uploading byte-identical content reuses the record
// instead of creating a duplicate.
func (e *EvidenceDB) FindByOwnerAndDigest(ctx context.Context, ownerUserID, digest string) (*models.Evidence, error) {
	row := e.db.QueryRowContext(ctx, evidenceSelect+" WHERE owner_user_id = $1 AND content_digest = $2", ownerUserID, digest)
	return scanEvidence(row)
}

// ListByOwner lists a user's evidence, optionally filtered by case number.
func (e *EvidenceDB) ListByOwner(ctx context.Context, ownerUserID, caseNumber string) ([]*models.Evidence, error) {
	query := evidenceSelect + " WHERE owner_user_id = $1"
	args := []interface{}{ownerUserID}
	if caseNumber != "" {
		query += " AND case_number = $2"
		args = append(args, caseNumber)
	}
	query += " ORDER BY created_at DESC"

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []*models.Evidence{}
	for rows.Next() {
		ev := &models.Evidence{}
		var declaredType, status string
		var arrestDate sql.NullString
		var involvedParties pq.StringArray
		var completedAt sql.NullTime
		if err := rows.Scan(&ev.ID, &ev.OwnerUserID, &declaredType, &ev.ContentDigest, &ev.ByteSize,
			&ev.OriginalName, &ev.StoragePath, &status, &ev.CaseNumber, &arrestDate, &involvedParties,
			&ev.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evidence row: %w", err)
		}
		ev.DeclaredType = models.EvidenceType(declaredType)
		ev.Status = models.EvidenceStatus(status)
		ev.ArrestDate = arrestDate.String
		ev.InvolvedParties = []string(involvedParties)
		if completedAt.Valid {
			ev.CompletedAt = &completedAt.Time
		}
		results = append(results, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evidence rows: %w", err)
	}
	return results, nil
}

// UpdateStatus transitions an evidence record's processing status.
func (e *EvidenceDB) UpdateStatus(ctx context.Context, id string, status models.EvidenceStatus) error {
	var completedAt interface{}
	if status == models.EvidenceCompleted || status == models.EvidenceFailed {
		completedAt = time.Now()
	}
	_, err := e.db.ExecContext(ctx, `
		UPDATE evidence SET status = $1, completed_at = $2 WHERE id = $3
	`, string(status), completedAt, id)
	return err
}
