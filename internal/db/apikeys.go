package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DTMBX/evident/internal/models"
	"github.com/google/uuid"
)

// ApiKeyDB handles database operations for programmatic API keys.
// Only the SHA-256 digest of a key is ever persisted; the plaintext is
// generated by internal/auth and handed to the caller once, at creation.
type ApiKeyDB struct {
	db *sql.DB
}

// NewApiKeyDB creates a new ApiKeyDB bound to an open connection pool.
func NewApiKeyDB(db *sql.DB) *ApiKeyDB {
	return &ApiKeyDB{db: db}
}

// Create stores a new API key record for the given owner.
func (a *ApiKeyDB) Create(ctx context.Context, ownerUserID, keyDigest, displayName string, expiresAt *time.Time) (*models.ApiKey, error) {
	key := &models.ApiKey{
		ID:          uuid.New().String(),
		OwnerUserID: ownerUserID,
		KeyDigest:   keyDigest,
		DisplayName: displayName,
		Active:      true,
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, owner_user_id, key_digest, display_name, active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, key.ID, key.OwnerUserID, key.KeyDigest, key.DisplayName, key.Active, key.CreatedAt, key.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}

	return key, nil
}

func scanApiKey(row *sql.Row) (*models.ApiKey, error) {
	key := &models.ApiKey{}
	var expiresAt, lastUsedAt sql.NullTime
	err := row.Scan(&key.ID, &key.OwnerUserID, &key.KeyDigest, &key.DisplayName,
		&key.Active, &key.CreatedAt, &expiresAt, &lastUsedAt, &key.RequestCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("api key not found")
		}
		return nil, err
	}
	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		key.LastUsedAt = &lastUsedAt.Time
	}
	return key, nil
}

const apiKeySelect = `
	SELECT id, owner_user_id, key_digest, display_name, active, created_at, expires_at, last_used_at, request_count
	FROM api_keys
`

// GetByDigest looks up an active API key by its SHA-256 digest. Used on
// every request authenticated with an API key.
func (a *ApiKeyDB) GetByDigest(ctx context.Context, digest string) (*models.ApiKey, error) {
	row := a.db.QueryRowContext(ctx, apiKeySelect+" WHERE key_digest = $1", digest)
	return scanApiKey(row)
}

// ListByOwner lists every API key belonging to a user, most recent first.
func (a *ApiKeyDB) ListByOwner(ctx context.Context, ownerUserID string) ([]*models.ApiKey, error) {
	rows, err := a.db.QueryContext(ctx, apiKeySelect+" WHERE owner_user_id = $1 ORDER BY created_at DESC", ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []*models.ApiKey{}
	for rows.Next() {
		key := &models.ApiKey{}
		var expiresAt, lastUsedAt sql.NullTime
		if err := rows.Scan(&key.ID, &key.OwnerUserID, &key.KeyDigest, &key.DisplayName,
			&key.Active, &key.CreatedAt, &expiresAt, &lastUsedAt, &key.RequestCount); err != nil {
			return nil, fmt.Errorf("failed to scan api key row: %w", err)
		}
		if expiresAt.Valid {
			key.ExpiresAt = &expiresAt.Time
		}
		if lastUsedAt.Valid {
			key.LastUsedAt = &lastUsedAt.Time
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api key rows: %w", err)
	}
	return keys, nil
}

// Revoke deactivates an API key; it is never deleted, preserving the audit trail.
func (a *ApiKeyDB) Revoke(ctx context.Context, id string) error {
	_, err := a.db.ExecContext(ctx, `UPDATE api_keys SET active = false WHERE id = $1`, id)
	return err
}

// RecordUse bumps the request counter and last-used timestamp. Called
// asynchronously from the auth middleware so it never adds latency to the
// request path.
func (a *ApiKeyDB) RecordUse(ctx context.Context, id string) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE api_keys SET request_count = request_count + 1, last_used_at = $1 WHERE id = $2
	`, time.Now(), id)
	return err
}
