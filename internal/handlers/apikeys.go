package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/auth"
	"github.com/DTMBX/evident/internal/db"
)

// APIKeyHandler implements POST /api/keys and DELETE /api/keys/{id}.
type APIKeyHandler struct {
	apiKeys *db.ApiKeyDB
}

// NewAPIKeyHandler builds an APIKeyHandler.
func NewAPIKeyHandler(apiKeys *db.ApiKeyDB) *APIKeyHandler {
	return &APIKeyHandler{apiKeys: apiKeys}
}

// RegisterRoutes mounts this handler's routes on rg, expected to sit behind
// auth.Middleware.
func (h *APIKeyHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.DELETE("/:id", h.Delete)
}

type createKeyRequest struct {
	DisplayName string     `json:"displayName" binding:"required"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// Create issues a new API key for the caller, returning the plaintext
// value exactly once (spec.md §6.1: "issue, return plaintext once").
func (h *APIKeyHandler) Create(c *gin.Context) {
	principal := auth.PrincipalFromContext(c)

	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.New(apperrors.MalformedRequest, "displayName is required"))
		return
	}

	plainKey, digest, err := generateAPIKey()
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.Internal, "failed to generate api key", err))
		return
	}

	key, err := h.apiKeys.Create(c.Request.Context(), principal.UserID, digest, req.DisplayName, req.ExpiresAt)
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.DatabaseError, "failed to persist api key", err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":          key.ID,
		"key":         plainKey,
		"displayName": key.DisplayName,
		"createdAt":   key.CreatedAt,
		"expiresAt":   key.ExpiresAt,
	})
}

// Delete deactivates an API key, 204 on success regardless of prior state
// (spec.md §6.1: "deactivate").
func (h *APIKeyHandler) Delete(c *gin.Context) {
	if err := h.apiKeys.Revoke(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, apperrors.Wrap(apperrors.DatabaseError, "failed to revoke api key", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// tokenHasher generates API key material. 32 random bytes matches the
// entropy gate.authenticateAPIKey's digest comparison assumes.
var tokenHasher = auth.NewTokenHasher()

// generateAPIKey mints a random bearer key and its SHA-256 digest, the
// same scheme internal/gate.authenticateAPIKey checks incoming keys
// against.
func generateAPIKey() (plainKey, digestHex string, err error) {
	return tokenHasher.GenerateDigestToken(32)
}
