// Package db provides PostgreSQL database access for the Evident API.
//
// This file implements account management: CRUD for users and API keys,
// password hashing and verification, tier assignment, and last-login
// tracking.
//
// Passwords are never stored in plaintext (bcrypt, default cost). API keys
// are stored only as a SHA-256 digest (internal/auth/tokenhash.go) —
// the plaintext key is shown to the caller exactly once, at creation.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DTMBX/evident/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserDB handles database operations for user accounts.
type UserDB struct {
	db *sql.DB
}

// NewUserDB creates a new UserDB bound to an open connection pool.
func NewUserDB(db *sql.DB) *UserDB {
	return &UserDB{db: db}
}

// DB returns the underlying connection pool.
func (u *UserDB) DB() *sql.DB {
	return u.db
}

// CreateUser creates a new user with a bcrypt-hashed password and the
// given tier, defaulting to free when tier is empty.
func (u *UserDB) CreateUser(ctx context.Context, email, password string, tier models.Tier) (*models.User, error) {
	if tier == "" {
		tier = models.TierFree
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("invalid tier: %s", tier)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hashed),
		Tier:         tier,
		Active:       true,
		CreatedAt:    time.Now(),
	}

	_, err = u.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, tier, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Email, user.PasswordHash, string(user.Tier), user.Active, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var tier string
	var lastLogin sql.NullTime
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &tier, &user.Active, &user.CreatedAt, &lastLogin)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, err
	}
	user.Tier = models.Tier(tier)
	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (u *UserDB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	row := u.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, tier, active, created_at, last_login_at
		FROM users WHERE id = $1
	`, userID)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email address, used for login.
func (u *UserDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := u.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, tier, active, created_at, last_login_at
		FROM users WHERE email = $1
	`, email)
	return scanUser(row)
}

// ListUsers retrieves all users, optionally filtered by tier and active status.
func (u *UserDB) ListUsers(ctx context.Context, tier models.Tier, activeOnly bool) ([]*models.User, error) {
	query := `
		SELECT id, email, password_hash, tier, active, created_at, last_login_at
		FROM users WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if tier != "" {
		query += fmt.Sprintf(" AND tier = $%d", argIdx)
		args = append(args, string(tier))
		argIdx++
	}
	if activeOnly {
		query += " AND active = true"
	}
	query += " ORDER BY created_at ASC"

	rows, err := u.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user := &models.User{}
		var t string
		var lastLogin sql.NullTime
		if err := rows.Scan(&user.ID, &user.Email, &user.PasswordHash, &t, &user.Active, &user.CreatedAt, &lastLogin); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		user.Tier = models.Tier(t)
		if lastLogin.Valid {
			user.LastLoginAt = &lastLogin.Time
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

// UpdateTier changes a user's subscription tier.
func (u *UserDB) UpdateTier(ctx context.Context, userID string, tier models.Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("invalid tier: %s", tier)
	}
	_, err := u.db.ExecContext(ctx, `UPDATE users SET tier = $1 WHERE id = $2`, string(tier), userID)
	return err
}

// SetActive enables or disables a user's account.
func (u *UserDB) SetActive(ctx context.Context, userID string, active bool) error {
	_, err := u.db.ExecContext(ctx, `UPDATE users SET active = $1 WHERE id = $2`, active, userID)
	return err
}

// DeleteUser removes a user and (via ON DELETE CASCADE) their api keys,
// evidence, sessions, and usage counters.
func (u *UserDB) DeleteUser(ctx context.Context, userID string) error {
	_, err := u.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	return err
}

// UpdateLastLogin stamps the user's last successful authentication time.
func (u *UserDB) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := u.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, time.Now(), userID)
	return err
}

// UpdatePassword re-hashes and stores a new password.
func (u *UserDB) UpdatePassword(ctx context.Context, userID, newPassword string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	_, err = u.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, string(hashed), userID)
	return err
}

// VerifyPassword checks a plaintext password against the stored hash and
// bumps last_login_at on success. Disabled accounts are rejected outright.
func (u *UserDB) VerifyPassword(ctx context.Context, email, password string) (*models.User, error) {
	user, err := u.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, fmt.Errorf("account is disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid password")
	}
	_ = u.UpdateLastLogin(ctx, user.ID)
	return user, nil
}
