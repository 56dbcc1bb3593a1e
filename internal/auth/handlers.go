// Package auth provides authentication and authorization mechanisms for Evident.
// This file implements the enterprise/admin-tier SAML SSO login flow.
//
// SAML AUTHENTICATION FLOW:
//
// 1. GET /auth/saml/login:
//   - Stores the caller's return URL in a short-lived cookie
//   - Redirects the browser to the configured IdP
//
// 2. POST /auth/saml/acs:
//   - samlsp middleware validates the assertion signature before this
//     handler runs, and stashes it in the gin context
//   - The handler extracts the user's email and group claims, auto-
//     provisions (or reuses) an account through samlUserManager, and
//     mints a session token
//
// 3. GET /auth/saml/metadata:
//   - Serves this service's SP metadata document for IdP configuration
//
// Unlike the teacher's original AuthHandler, there is no local
// username/password surface here: password and API-key login already
// live at gate.Gate.Authenticate (see internal/handlers/auth.go), so this
// handler only ever covers the SAML-specific routes, mirroring how
// SSOHandler in sso.go covers the OIDC-specific ones.
package auth

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/models"
)

// validateReturnURL validates that a return URL is safe to redirect to,
// preventing open-redirect attacks via a crafted return_url query param.
func validateReturnURL(returnURL string) string {
	if returnURL == "" {
		return "/"
	}
	if !strings.HasPrefix(returnURL, "/") {
		return "/"
	}
	if strings.HasPrefix(returnURL, "//") {
		return "/"
	}
	if strings.ContainsAny(returnURL, "\\") {
		return "/"
	}
	if strings.Contains(returnURL, "://") {
		return "/"
	}
	if strings.Contains(returnURL, "%2f") || strings.Contains(returnURL, "%2F") {
		return "/"
	}
	return returnURL
}

// TokenManager defines the session-minting operations both SAMLHandler and
// SSOHandler depend on, satisfied by the live JWT manager wired in main.go.
type TokenManager interface {
	GenerateTokenWithContext(ctx context.Context, userID, username, email, role string, groups []string, ipAddress, userAgent string) (string, error)
	RefreshToken(token string) (string, error)
	ValidateToken(token string) (*Claims, error)
	InvalidateSession(ctx context.Context, sessionID string) error
	GetTokenDuration() time.Duration
}

// SAMLService defines the subset of SAMLAuthenticator a SAMLHandler needs.
type SAMLService interface {
	GetMiddleware() *samlsp.Middleware
	GetServiceProvider() *saml.ServiceProvider
	ExtractUserFromAssertion(assertion *saml.Assertion) (*UserInfo, error)
}

// tierForGroups maps an IdP's SAML group claim onto a subscription tier.
// A group named "admin" (case-insensitive) grants models.TierAdmin;
// everything else provisions at models.TierEnterprise, the floor this
// service requires for SSO accounts in the first place.
func tierForGroups(groups []string) models.Tier {
	for _, g := range groups {
		if strings.EqualFold(g, "admin") {
			return models.TierAdmin
		}
	}
	return models.TierEnterprise
}

// samlUserManager auto-provisions an account for a verified SAML identity
// and mints a session token, the SAML counterpart to ssoUserManager in
// sso.go.
type samlUserManager struct {
	users  *db.UserDB
	tokens TokenManager
}

func (m *samlUserManager) createOrUpdateSAMLUser(ctx context.Context, info *UserInfo) (*User, error) {
	if info.Email == "" {
		return nil, fmt.Errorf("SAML assertion did not include an email attribute")
	}

	tier := tierForGroups(info.Groups)

	account, err := m.users.GetUserByEmail(ctx, info.Email)
	if err != nil {
		account, err = m.users.CreateUser(ctx, info.Email, uuid.NewString(), tier)
		if err != nil {
			return nil, fmt.Errorf("provisioning SAML user: %w", err)
		}
	}

	if !account.Active {
		return nil, fmt.Errorf("account %s is disabled", account.Email)
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
		Provider: "saml",
		Groups:   info.Groups,
		Token:    token,
	}, nil
}

// SAMLHandler mounts the enterprise/admin-tier SAML SSO login flow.
type SAMLHandler struct {
	saml SAMLService
	mgr  *samlUserManager
}

// NewSAMLHandler wires the SAML flow to auto-provision enterprise/admin
// accounts through userDB and mint sessions through tokens. Returns nil
// when samlAuth is nil, since SAML is an optional enterprise feature
// (SPEC_FULL.md §4.8) most deployments run without.
func NewSAMLHandler(samlAuth SAMLService, userDB *db.UserDB, tokens TokenManager) *SAMLHandler {
	if samlAuth == nil {
		return nil
	}
	return &SAMLHandler{saml: samlAuth, mgr: &samlUserManager{users: userDB, tokens: tokens}}
}

// RegisterRoutes mounts GET /saml/login, POST /saml/acs, GET /saml/metadata.
func (h *SAMLHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/saml/login", h.SAMLLogin)
	router.POST("/saml/acs", h.SAMLCallback)
	router.GET("/saml/metadata", h.SAMLMetadata)
}

// SAMLLogin initiates the SAML authentication flow.
func (h *SAMLHandler) SAMLLogin(c *gin.Context) {
	returnURL := validateReturnURL(c.Query("return_url"))

	c.SetCookie(
		"saml_return_url",
		returnURL,
		3600,
		"/",
		"",
		c.Request.TLS != nil,
		true,
	)

	h.saml.GetMiddleware().HandleStartAuthFlow(c.Writer, c.Request)
}

// SAMLCallback handles the SAML assertion callback (the ACS endpoint).
func (h *SAMLHandler) SAMLCallback(c *gin.Context) {
	ctx := c.Request.Context()

	assertionData, exists := c.Get("saml_assertion")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No SAML assertion found"})
		return
	}

	assertion, ok := assertionData.(*saml.Assertion)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid SAML assertion type"})
		return
	}

	userAttrs, err := h.saml.ExtractUserFromAssertion(assertion)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to extract user from SAML assertion",
			"message": err.Error(),
		})
		return
	}

	user, err := h.mgr.createOrUpdateSAMLUser(ctx, userAttrs)
	if err != nil {
		log.Printf("[ERROR] SAML: failed to provision user: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "SAML authentication failed",
			"message": err.Error(),
		})
		return
	}

	returnURL, err := c.Cookie("saml_return_url")
	if err != nil || returnURL == "" {
		returnURL = "/"
	}
	c.SetCookie("saml_return_url", "", -1, "/", "", c.Request.TLS != nil, true)

	c.JSON(http.StatusOK, gin.H{
		"user":      user,
		"returnUrl": returnURL,
		"message":   "SAML authentication successful",
	})
}

// SAMLMetadata returns this service's SAML service-provider metadata.
func (h *SAMLHandler) SAMLMetadata(c *gin.Context) {
	sp := h.saml.GetServiceProvider()
	if sp == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "SAML service provider not initialized"})
		return
	}

	metadata := sp.Metadata()
	metadataBytes, err := xml.Marshal(metadata)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to marshal metadata: %v", err)})
		return
	}

	c.Header("Content-Type", "application/samlmetadata+xml")
	c.String(http.StatusOK, string(metadataBytes))
}
