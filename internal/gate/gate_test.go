package gate

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/audit"
	"github.com/DTMBX/evident/internal/cache"
	"github.com/DTMBX/evident/internal/config"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/models"
	"github.com/DTMBX/evident/internal/quota"
	"github.com/DTMBX/evident/internal/ratebucket"
)

func newTestGate(t *testing.T, cfg *config.Config) (*Gate, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	if cfg == nil {
		cfg = &config.Config{TierLimits: map[string]config.TierLimit{
			"free":         {RateBucketCapacity: 1e6, APICallsPerMinute: 1e6},
			"starter":      {RateBucketCapacity: 1e6, APICallsPerMinute: 1e6},
			"professional": {RateBucketCapacity: 1e6, APICallsPerMinute: 1e6, Features: []string{"bulk_export"}},
		}}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-only-secret-key-at-least-32-bytes-long"
	}

	users := db.NewUserDB(sqlDB)
	apiKeys := db.NewApiKeyDB(sqlDB)
	usageDB := db.NewUsageDB(sqlDB)
	enforcer := quota.NewEnforcer(usageDB, cfg)
	buckets := ratebucket.New()
	auditor := audit.New(sqlDB, zerolog.Nop())

	return New(users, apiKeys, usageDB, enforcer, buckets, cfg, auditor, nil, cache.NewMemoryCache()), mock
}

// expectAuditRecord sets up the Begin/SELECT-next-sequence/INSERT/Commit
// sequence audit.Logger.Record runs for exactly one recorded event.
func expectAuditRecord(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestAuthenticate_PasswordSuccess_IssuesPrincipalAndSession(t *testing.T) {
	g, mock := newTestGate(t, nil)

	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.DefaultCost)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "tier", "active", "created_at", "last_login_at"}).
		AddRow("u1", "dana@example.com", string(hashed), "free", true, time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").WithArgs("dana@example.com").WillReturnRows(rows)
	expectAuditRecord(mock)

	principal, session, err := g.Authenticate(context.Background(), Credentials{Email: "dana@example.com", Password: "correct-password"})
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.UserID)
	assert.Equal(t, models.TierFree, principal.Tier)
	assert.NotEmpty(t, session.Token)
	assert.True(t, session.ExpiresAt.After(time.Now()))
}

func TestLogout_InvalidatesSessionAndNeverErrors(t *testing.T) {
	g, mock := newTestGate(t, nil)

	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.DefaultCost)
	require.NoError(t, err)
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "tier", "active", "created_at", "last_login_at"}).
		AddRow("u1", "dana@example.com", string(hashed), "free", true, time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").WithArgs("dana@example.com").WillReturnRows(rows)
	expectAuditRecord(mock)

	_, session, err := g.Authenticate(context.Background(), Credentials{Email: "dana@example.com", Password: "correct-password"})
	require.NoError(t, err)

	require.NoError(t, g.Logout(context.Background(), session.Token))
	// A second logout, and a logout of garbage input, are both no-ops.
	require.NoError(t, g.Logout(context.Background(), session.Token))
	require.NoError(t, g.Logout(context.Background(), "not-a-real-token"))
}

func TestAuthenticate_WrongPassword_ReturnsInvalidCredentials(t *testing.T) {
	g, mock := newTestGate(t, nil)

	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.DefaultCost)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "tier", "active", "created_at", "last_login_at"}).
		AddRow("u1", "erin@example.com", string(hashed), "free", true, time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").WithArgs("erin@example.com").WillReturnRows(rows)
	expectAuditRecord(mock)

	_, _, err = g.Authenticate(context.Background(), Credentials{Email: "erin@example.com", Password: "wrong-password"})
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.InvalidCredentials, appErr.Kind)
}

func TestGate_DeniesUnauthenticatedPrincipal(t *testing.T) {
	g, mock := newTestGate(t, nil)
	expectAuditRecord(mock)

	_, err := g.Gate(context.Background(), nil, OperationDescriptor{Name: "upload"}, 1)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.Unauthenticated, appErr.Kind)
}

func TestGate_DeniesInsufficientTier(t *testing.T) {
	g, mock := newTestGate(t, nil)
	expectAuditRecord(mock)

	principal := &models.Principal{UserID: "u1", Tier: models.TierFree, Active: true}
	_, err := g.Gate(context.Background(), principal, OperationDescriptor{Name: "bulk-export", TierFloor: models.TierProfessional}, 1)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.InsufficientTier, appErr.Kind)
}

func TestGate_DeniesMissingFeature(t *testing.T) {
	g, mock := newTestGate(t, nil)
	expectAuditRecord(mock)

	principal := &models.Principal{UserID: "u1", Tier: models.TierStarter, Active: true}
	_, err := g.Gate(context.Background(), principal, OperationDescriptor{Name: "bulk-export", TierFloor: models.TierFree, RequiredFeature: "bulk_export"}, 1)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.FeatureNotAvailable, appErr.Kind)
}

func TestGate_DeniesRateLimited(t *testing.T) {
	cfg := &config.Config{TierLimits: map[string]config.TierLimit{
		"free": {RateBucketCapacity: 1, APICallsPerMinute: 60},
	}}
	g, mock := newTestGate(t, cfg)

	principal := &models.Principal{UserID: "u1", Tier: models.TierFree, Active: true}
	op := OperationDescriptor{Name: "upload", TierFloor: models.TierFree, OperationClass: "upload"}

	_, err := g.Gate(context.Background(), principal, op, 1)
	require.NoError(t, err)

	expectAuditRecord(mock)
	_, err = g.Gate(context.Background(), principal, op, 1)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.RateLimited, appErr.Kind)
	assert.Greater(t, appErr.RetryAfterSeconds, 0)
}

func TestGate_GrantsAndChargeIsIdempotent(t *testing.T) {
	cfg := &config.Config{TierLimits: map[string]config.TierLimit{
		"enterprise": {RateBucketCapacity: 1e6, APICallsPerMinute: 1e6, UploadsPerMonth: config.Unlimited},
	}}
	g, mock := newTestGate(t, cfg)
	expectAuditRecord(mock)

	principal := &models.Principal{UserID: "u1", Tier: models.TierEnterprise, Active: true}
	op := OperationDescriptor{
		Name: "ingest", TierFloor: models.TierFree, OperationClass: "upload",
		Counter: models.CounterPDFDocuments, AuditWorthy: true,
	}

	token, err := g.Gate(context.Background(), principal, op, 1)
	require.NoError(t, err)
	require.NotNil(t, token)

	mock.ExpectExec("INSERT INTO usage_counters").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, g.Charge(context.Background(), token, 1))

	// Second redemption is a no-op: no further exec is registered, so an
	// unexpected call here would fail ExpectationsWereMet below.
	require.NoError(t, g.Charge(context.Background(), token, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}
