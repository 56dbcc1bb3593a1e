package auth

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/models"
)

// ssoUserManager auto-provisions an enterprise-tier account for a verified
// OIDC identity and mints a session token the same way gate.Gate does for
// password logins, implementing UserManager over this service's own
// UserDB rather than the teacher's group-based user store.
type ssoUserManager struct {
	users  *db.UserDB
	tokens TokenManager
}

func (m *ssoUserManager) CreateOrUpdateOIDCUser(ctx context.Context, info *OIDCUserInfo) (*User, error) {
	if info.Email == "" {
		return nil, fmt.Errorf("OIDC provider did not return an email claim")
	}

	account, err := m.users.GetUserByEmail(ctx, info.Email)
	if err != nil {
		account, err = m.users.CreateUser(ctx, info.Email, uuid.NewString(), models.TierEnterprise)
		if err != nil {
			return nil, fmt.Errorf("provisioning SSO user: %w", err)
		}
	}

	token, err := m.tokens.GenerateTokenWithContext(ctx, account.ID, account.Email, account.Email,
		string(account.Tier), info.Groups, "", "")
	if err != nil {
		return nil, fmt.Errorf("minting session token: %w", err)
	}

	return &User{
		ID:       account.ID,
		Username: account.Email,
		Email:    account.Email,
		Provider: "oidc",
		Groups:   info.Groups,
		Token:    token,
	}, nil
}

// SSOHandler mounts the enterprise/admin-tier OIDC login flow. Kept
// separate from AuthHandler: this service's primary login path is
// gate.Gate.Authenticate against password/API-key credentials, not the
// teacher's cookie/SAML handler, so SSO is additive rather than a
// replacement for POST /api/auth/login.
type SSOHandler struct {
	oidc *OIDCAuthenticator
	mgr  UserManager
}

// NewSSOHandler wires the OIDC flow to auto-provision enterprise accounts
// through userDB and mint sessions through tokens. Returns nil when oidc
// is nil, since SSO is an optional enterprise feature (SPEC_FULL.md
// §4.8) most deployments run without.
func NewSSOHandler(oidc *OIDCAuthenticator, userDB *db.UserDB, tokens TokenManager) *SSOHandler {
	if oidc == nil {
		return nil
	}
	return &SSOHandler{oidc: oidc, mgr: &ssoUserManager{users: userDB, tokens: tokens}}
}

// RegisterRoutes mounts GET /sso/oidc/login and GET /sso/oidc/callback.
func (h *SSOHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sso/oidc/login", h.oidc.OIDCLoginHandler)
	rg.GET("/sso/oidc/callback", h.oidc.OIDCCallbackHandler(h.mgr))
}
