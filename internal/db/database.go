// Package db provides PostgreSQL database access for the Evident API.
//
// Purpose:
// - Establish and maintain a PostgreSQL connection pool
// - Initialize schema on startup (users, api keys, evidence, analysis
//   results, usage counters, audit events, analyzer rules)
// - Provide a centralized database handle for handlers and services
//
// Features:
// - Connection pooling with configurable limits (25 max open, 5 max idle)
// - Idempotent CREATE TABLE IF NOT EXISTS migrations, run once at startup
// - Configuration validation (prevents SQL injection in connection strings)
// - SSL/TLS warnings when running without encryption
package db

import (
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Config holds database connection configuration.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Database wraps a pooled PostgreSQL connection.
type Database struct {
	db *sql.DB
}

// validateConfig rejects connection parameters that cannot be safely
// interpolated into a libpq connection string.
func validateConfig(config Config) error {
	if config.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if net.ParseIP(config.Host) == nil {
		hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
		if !hostnameRegex.MatchString(config.Host) {
			return fmt.Errorf("invalid database host: %s", config.Host)
		}
	}

	if config.Port == "" {
		return fmt.Errorf("database port cannot be empty")
	}
	port, err := strconv.Atoi(config.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid database port: %s (must be 1-65535)", config.Port)
	}

	if config.User == "" {
		return fmt.Errorf("database user cannot be empty")
	}
	userRegex := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	if !userRegex.MatchString(config.User) {
		return fmt.Errorf("invalid database user: %s (only alphanumeric, underscore, and hyphen allowed)", config.User)
	}

	if config.DBName == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	dbNameRegex := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	if !dbNameRegex.MatchString(config.DBName) {
		return fmt.Errorf("invalid database name: %s (only alphanumeric, underscore, and hyphen allowed)", config.DBName)
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if config.SSLMode != "" {
		valid := false
		for _, mode := range validSSLModes {
			if config.SSLMode == mode {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid SSL mode: %s (must be one of: %s)", config.SSLMode, strings.Join(validSSLModes, ", "))
		}
	}

	if config.SSLMode == "" || config.SSLMode == "disable" {
		fmt.Println("WARNING: Database SSL/TLS is DISABLED - this is insecure for production")
		fmt.Println("         Set DB_SSL_MODE to 'require', 'verify-ca', or 'verify-full'")
	}

	return nil
}

// NewDatabase opens a pooled connection and verifies it with a ping.
func NewDatabase(config Config) (*Database, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: sqlDB}, nil
}

// NewDatabaseForTesting wraps an existing *sql.DB (e.g. from sqlmock) for
// dependency injection in tests. Do not use in production code.
func NewDatabaseForTesting(sqlDB *sql.DB) *Database {
	return &Database{db: sqlDB}
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying *sql.DB for callers that need raw access.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Migrate runs idempotent schema migrations for every table this service
// owns. Safe to run on every startup.
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(255) PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			tier VARCHAR(50) NOT NULL DEFAULT 'free',
			active BOOLEAN DEFAULT true,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_login_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_users_tier ON users(tier)`,

		`CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(255) PRIMARY KEY,
			owner_user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			key_digest VARCHAR(255) UNIQUE NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			active BOOLEAN DEFAULT true,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP,
			request_count BIGINT DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON api_keys(owner_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_digest ON api_keys(key_digest)`,

		`CREATE TABLE IF NOT EXISTS evidence (
			id VARCHAR(255) PRIMARY KEY,
			owner_user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			declared_type VARCHAR(50) NOT NULL,
			content_digest VARCHAR(64) NOT NULL,
			byte_size BIGINT NOT NULL,
			original_name VARCHAR(500),
			storage_path TEXT NOT NULL,
			status VARCHAR(50) NOT NULL DEFAULT 'received',
			case_number VARCHAR(255),
			arrest_date VARCHAR(255),
			involved_parties TEXT[],
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_owner ON evidence(owner_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_digest ON evidence(content_digest)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_case_number ON evidence(case_number)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_status ON evidence(status)`,

		`CREATE TABLE IF NOT EXISTS analysis_results (
			id VARCHAR(255) PRIMARY KEY,
			evidence_id VARCHAR(255) NOT NULL REFERENCES evidence(id) ON DELETE CASCADE,
			fingerprint VARCHAR(64) NOT NULL,
			analyzer_profile_version VARCHAR(50) NOT NULL,
			state VARCHAR(50) NOT NULL DEFAULT 'pending',
			failing_stage VARCHAR(100),
			result JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP,
			UNIQUE(evidence_id, fingerprint)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_results_evidence ON analysis_results(evidence_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_results_fingerprint ON analysis_results(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_results_state ON analysis_results(state)`,

		`CREATE TABLE IF NOT EXISTS usage_counters (
			user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			year_month VARCHAR(7) NOT NULL,
			pdf_documents_processed BIGINT DEFAULT 0,
			videos_processed BIGINT DEFAULT 0,
			video_hours DOUBLE PRECISION DEFAULT 0,
			transcription_minutes DOUBLE PRECISION DEFAULT 0,
			api_calls BIGINT DEFAULT 0,
			cases_created BIGINT DEFAULT 0,
			PRIMARY KEY (user_id, year_month)
		)`,

		`CREATE TABLE IF NOT EXISTS audit_events (
			id VARCHAR(255) PRIMARY KEY,
			day_partition VARCHAR(10) NOT NULL,
			sequence BIGINT NOT NULL,
			actor_user_id VARCHAR(255) NOT NULL,
			subject VARCHAR(255) NOT NULL,
			subject_content_digest VARCHAR(64),
			action VARCHAR(100) NOT NULL,
			outcome VARCHAR(50) NOT NULL,
			request_fingerprint VARCHAR(64),
			references_event_id VARCHAR(255),
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(day_partition, sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_subject ON audit_events(subject)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_day_partition ON audit_events(day_partition)`,

		`CREATE TABLE IF NOT EXISTS analyzer_rules (
			id VARCHAR(255) PRIMARY KEY,
			profile_version VARCHAR(50) NOT NULL,
			kind VARCHAR(50) NOT NULL,
			name VARCHAR(255) NOT NULL,
			pattern TEXT NOT NULL,
			severity VARCHAR(20) NOT NULL,
			citations TEXT[],
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyzer_rules_profile ON analyzer_rules(profile_version)`,
		`CREATE INDEX IF NOT EXISTS idx_analyzer_rules_kind ON analyzer_rules(kind)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_digest VARCHAR(255) UNIQUE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL,
			revoked_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_token_digest ON sessions(token_digest)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nstatement: %s", err, migration)
		}
	}

	return nil
}
