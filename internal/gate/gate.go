// Package gate implements the Access & Quota Gate (spec.md §4.8): the
// single checkpoint every protected operation passes through before it
// reaches the Evidence Processor or an external AI provider. It composes
// the rest of the Service Substrate — internal/quota for the monthly
// counter check, internal/ratebucket for the per-principal token bucket,
// internal/audit for the denial/grant trail, and internal/events for
// quota-exceeded notifications — rather than re-implementing any of them.
//
// Grounded on the teacher's auth+rate-limit middleware chain
// (internal/auth/middleware.go authenticates, internal/middleware/ratelimit.go
// throttles) collapsed into the single ordered checklist spec.md §4.8
// mandates, so one object — not a chain of net/http middleware — owns the
// whole authorize-then-charge lifecycle and can be unit tested without a
// running HTTP server.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/audit"
	"github.com/DTMBX/evident/internal/auth"
	"github.com/DTMBX/evident/internal/cache"
	"github.com/DTMBX/evident/internal/config"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/events"
	"github.com/DTMBX/evident/internal/logger"
	"github.com/DTMBX/evident/internal/models"
	"github.com/DTMBX/evident/internal/quota"
	"github.com/DTMBX/evident/internal/ratebucket"
	"github.com/google/uuid"
)

// Credentials identifies a caller either by (email, password) or by a
// bearer API key. Exactly one form should be populated.
type Credentials struct {
	Email    string
	Password string
	APIKey   string
}

// SessionHandle is the opaque, expiring handle returned by Authenticate. It
// is a signed JWT (internal/auth's JWTManager) rather than a bare random
// token, so a session can be validated offline (signature + exp) and still
// revoked server-side through the same manager's Redis-backed
// SessionStore — internal/middleware's request authentication and
// internal/auth/handlers.go's logout path both use the identical manager.
type SessionHandle struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

const sessionTTL = 24 * time.Hour

// ChargeToken is returned by Gate on a successful grant. The caller must
// redeem it exactly once via Charge, or let it go unused if the protected
// operation never completed. Redemption is idempotent: a second Charge
// call on the same token is a no-op.
type ChargeToken struct {
	mu       sync.Mutex
	redeemed bool

	userID  string
	counter models.CounterName
}

func (t *ChargeToken) redeem() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.redeemed {
		return false
	}
	t.redeemed = true
	return true
}

// Gate is the single object the design notes call for: one place that
// owns identity, tier floor, feature flags, rate limiting, and monthly
// metering, instead of a chain of independently-configured middleware.
type Gate struct {
	users      *db.UserDB
	apiKeys    *db.ApiKeyDB
	usageDB    *db.UsageDB
	enforcer   *quota.Enforcer
	buckets    *ratebucket.Buckets
	cfg        *config.Config
	auditor    *audit.Logger
	bus        events.Bus
	jwtManager *auth.JWTManager
}

// New builds a Gate over its Service Substrate dependencies. sessionCache
// backs the JWT manager's server-side session tracking so a logout or an
// admin-forced revocation invalidates a session immediately rather than
// waiting out its expiry.
func New(users *db.UserDB, apiKeys *db.ApiKeyDB, usageDB *db.UsageDB, enforcer *quota.Enforcer, buckets *ratebucket.Buckets, cfg *config.Config, auditor *audit.Logger, bus events.Bus, sessionCache cache.Cache) *Gate {
	jwtManager := auth.NewJWTManagerWithSessions(&auth.JWTConfig{
		SecretKey:     cfg.JWTSecret,
		Issuer:        "evident-api",
		TokenDuration: sessionTTL,
	}, sessionCache)
	return &Gate{
		users:      users,
		apiKeys:    apiKeys,
		usageDB:    usageDB,
		enforcer:   enforcer,
		buckets:    buckets,
		cfg:        cfg,
		auditor:    auditor,
		bus:        bus,
		jwtManager: jwtManager,
	}
}

// Authenticate verifies credentials and returns the resulting principal
// and an opaque session handle. Password comparison is constant-time
// (bcrypt, via internal/db.UserDB.VerifyPassword); API keys are compared
// by SHA-256 digest only. Neither path discloses which half of a
// (email, password) pair was wrong.
func (g *Gate) Authenticate(ctx context.Context, creds Credentials) (*models.Principal, *SessionHandle, error) {
	if creds.APIKey != "" {
		return g.authenticateAPIKey(ctx, creds.APIKey)
	}
	return g.authenticatePassword(ctx, creds.Email, creds.Password)
}

func (g *Gate) authenticatePassword(ctx context.Context, email, password string) (*models.Principal, *SessionHandle, error) {
	user, err := g.users.VerifyPassword(ctx, email, password)
	if err != nil {
		g.recordAuthFailure(ctx, email, "invalid_credentials")
		return nil, nil, apperrors.New(apperrors.InvalidCredentials, "invalid email or password")
	}
	if !user.Active {
		g.recordAuthFailure(ctx, email, "account_disabled")
		return nil, nil, apperrors.New(apperrors.AccountDisabled, "account is disabled")
	}

	principal := &models.Principal{UserID: user.ID, Tier: user.Tier, IsAdmin: user.Tier == models.TierAdmin, Active: user.Active}
	handle, err := g.issueSession(ctx, user)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.Internal, "failed to issue session", err)
	}

	g.recordAuth(ctx, user.ID, "auth.success", "password")
	return principal, handle, nil
}

func (g *Gate) authenticateAPIKey(ctx context.Context, plainKey string) (*models.Principal, *SessionHandle, error) {
	digest := sha256.Sum256([]byte(plainKey))
	key, err := g.apiKeys.GetByDigest(ctx, hex.EncodeToString(digest[:]))
	if err != nil {
		g.recordAuthFailure(ctx, "", "invalid_api_key")
		return nil, nil, apperrors.New(apperrors.InvalidCredentials, "invalid API key")
	}
	if !key.Active || key.Expired(time.Now()) {
		g.recordAuthFailure(ctx, key.OwnerUserID, "api_key_expired_or_revoked")
		return nil, nil, apperrors.New(apperrors.InvalidCredentials, "invalid API key")
	}

	user, err := g.users.GetUser(ctx, key.OwnerUserID)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.DatabaseError, "failed to load api key owner", err)
	}
	if !user.Active {
		g.recordAuthFailure(ctx, key.OwnerUserID, "account_disabled")
		return nil, nil, apperrors.New(apperrors.AccountDisabled, "account is disabled")
	}

	go func() {
		_ = g.apiKeys.RecordUse(context.Background(), key.ID)
	}()

	principal := &models.Principal{UserID: user.ID, Tier: user.Tier, IsAdmin: user.Tier == models.TierAdmin, Active: user.Active}
	handle, err := g.issueSession(ctx, user)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.Internal, "failed to issue session", err)
	}

	g.recordAuth(ctx, user.ID, "auth.success", "api_key")
	return principal, handle, nil
}

// Logout validates the bearer token just enough to recover its session id
// and revokes that session server-side, so the token stops working even
// though it remains cryptographically valid until it expires naturally.
// Per spec.md §6.1, logout is unconditionally successful even for an
// already-invalid token — there is nothing left to revoke in that case.
func (g *Gate) Logout(ctx context.Context, token string) error {
	claims, err := g.jwtManager.ValidateToken(token)
	if err != nil {
		return nil
	}
	return g.jwtManager.InvalidateSession(ctx, claims.ID)
}

// issueSession signs a JWT carrying the user's identity and tier, and (when
// the session cache is enabled) registers it in the JWT manager's
// server-side session store so InvalidateSession/InvalidateUserSessions
// can revoke it before its natural expiry.
func (g *Gate) issueSession(ctx context.Context, user *models.User) (*SessionHandle, error) {
	token, err := g.jwtManager.GenerateTokenWithContext(ctx, user.ID, user.Email, user.Email, string(user.Tier), nil, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	return &SessionHandle{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(g.jwtManager.GetTokenDuration()),
	}, nil
}

// Gate runs the ordered checklist of spec.md §4.8 step 2-6 for one
// operation and, on success, returns a charge token the caller must
// redeem via Charge once the protected operation completes. amount is the
// caller's best estimate of what it will consume, used only for the
// monthly-counter check; the actual charge may differ (see Charge).
func (g *Gate) Gate(ctx context.Context, principal *models.Principal, op OperationDescriptor, amount float64) (*ChargeToken, error) {
	log := logger.Gate()

	if principal == nil || !principal.Active {
		g.deny(ctx, "", op.Name, "unauthenticated")
		return nil, apperrors.New(apperrors.Unauthenticated, "authentication required")
	}

	if !principal.IsAdmin && !principal.Tier.AtLeast(op.TierFloor) {
		g.deny(ctx, principal.UserID, op.Name, "insufficient_tier")
		return nil, apperrors.New(apperrors.InsufficientTier, fmt.Sprintf("%s requires %s tier or above", op.Name, op.TierFloor))
	}

	limit := g.cfg.LimitFor(string(principal.Tier))

	if op.RequiredFeature != "" && !principal.IsAdmin && !limit.HasFeature(op.RequiredFeature) {
		g.deny(ctx, principal.UserID, op.Name, "feature_not_available")
		return nil, apperrors.New(apperrors.FeatureNotAvailable, fmt.Sprintf("%s requires the %s feature", op.Name, op.RequiredFeature))
	}

	bucketKey := principal.UserID + ":" + op.OperationClass
	if allowed, retryAfter := g.buckets.Allow(bucketKey, limit.RateBucketCapacity, limit.APICallsPerMinute/60.0); !allowed {
		g.deny(ctx, principal.UserID, op.Name, "rate_limited")
		return nil, apperrors.New(apperrors.RateLimited, "rate limit exceeded").WithRetryAfter(retryAfter)
	}

	if op.Counter != "" {
		if err := g.enforcer.Check(ctx, principal.UserID, principal.Tier, op.Counter, amount); err != nil {
			if appErr, ok := apperrors.As(err); ok && appErr.Kind == apperrors.QuotaExceeded {
				g.deny(ctx, principal.UserID, op.Name, "quota_exceeded")
				g.publishQuotaExceeded(principal.UserID, principal.Tier, op.Counter)
			}
			return nil, err
		}
	}

	if op.AuditWorthy {
		_, err := g.auditor.Record(ctx, audit.Entry{
			ActorUserID: principal.UserID,
			Subject:     principal.UserID,
			Action:      op.Name,
			Outcome:     "granted",
		})
		if err != nil {
			log.Error().Err(err).Str("operation", op.Name).Msg("failed to record grant audit event")
		}
	}

	log.Debug().Str("operation", op.Name).Str("user", principal.UserID).Msg("gate granted")
	return &ChargeToken{userID: principal.UserID, counter: op.Counter}, nil
}

// Charge atomically increments the operation's usage counter by amount.
// It is idempotent: once a token has been redeemed, further calls are a
// no-op. Callers that abandon a token (the protected operation failed)
// should simply never call Charge — nothing is metered.
func (g *Gate) Charge(ctx context.Context, token *ChargeToken, amount float64) error {
	if token == nil || token.counter == "" {
		return nil
	}
	if !token.redeem() {
		return nil
	}
	return g.usageDB.Increment(ctx, token.userID, token.counter, amount)
}

func (g *Gate) recordAuth(ctx context.Context, userID, action, method string) {
	_, err := g.auditor.Record(ctx, audit.Entry{ActorUserID: userID, Subject: userID, Action: action, Outcome: method})
	if err != nil {
		logger.Gate().Error().Err(err).Msg("failed to record auth success audit event")
	}
}

func (g *Gate) recordAuthFailure(ctx context.Context, email, reason string) {
	actor := email
	if actor == "" {
		actor = "unknown"
	}
	_, err := g.auditor.Record(ctx, audit.Entry{ActorUserID: actor, Subject: actor, Action: "auth.failure", Outcome: reason})
	if err != nil {
		logger.Gate().Error().Err(err).Msg("failed to record auth failure audit event")
	}
}

func (g *Gate) deny(ctx context.Context, userID, operation, reason string) {
	if userID == "" {
		userID = "unknown"
	}
	_, err := g.auditor.Record(ctx, audit.Entry{ActorUserID: userID, Subject: userID, Action: operation, Outcome: "denied:" + reason})
	if err != nil {
		logger.Gate().Error().Err(err).Msg("failed to record denial audit event")
	}
}

func (g *Gate) publishQuotaExceeded(userID string, tier models.Tier, counter models.CounterName) {
	if g.bus == nil || !g.bus.IsEnabled() {
		return
	}
	event := events.QuotaExceededEvent{
		EventID:   uuid.New().String(),
		Timestamp: time.Now(),
		UserID:    userID,
		Tier:      string(tier),
		Counter:   string(counter),
	}
	if err := g.bus.Publish(context.Background(), events.SubjectQuotaExceeded, event); err != nil {
		logger.Gate().Error().Err(err).Msg("failed to publish quota exceeded event")
	}
}
