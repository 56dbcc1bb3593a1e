// Package handlers implements the Gin handlers that make up the HTTP
// Surface (spec.md §6.1). Each handler type owns one resource group and a
// RegisterRoutes method, following the teacher's
// authHandler.RegisterRoutes(authGroup) convention in api/cmd/main.go
// rather than one monolithic Handler struct.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/gate"
)

// sessionCookie is the name of the cookie AuthHandler.Login sets, per
// spec.md §6.1's "200 with session cookie + principal summary".
const sessionCookie = "evident_session"

// AuthHandler implements POST /api/auth/login and POST /api/auth/logout.
type AuthHandler struct {
	gate *gate.Gate
}

// NewAuthHandler builds an AuthHandler over g.
func NewAuthHandler(g *gate.Gate) *AuthHandler {
	return &AuthHandler{gate: g}
}

// RegisterRoutes mounts this handler's routes on rg (expected to be the
// public, unauthenticated /api/auth group).
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.Logout)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates (email, password) and, on success, sets the session
// cookie and returns a principal summary.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.New(apperrors.MalformedRequest, "email and password are required"))
		return
	}

	principal, session, err := h.gate.Authenticate(c.Request.Context(), gate.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		writeError(c, err)
		return
	}

	c.SetCookie(sessionCookie, session.Token, int(time.Until(session.ExpiresAt).Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
		"principal": gin.H{
			"userId":  principal.UserID,
			"tier":    principal.Tier,
			"isAdmin": principal.IsAdmin,
		},
	})
}

// Logout invalidates the caller's session and unconditionally returns 200
// (spec.md §6.1: "invalidates session; always 200").
func (h *AuthHandler) Logout(c *gin.Context) {
	token := bearerOrCookie(c)
	_ = h.gate.Logout(c.Request.Context(), token)
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// bearerOrCookie extracts the caller's session token from the Authorization
// header if present, falling back to the session cookie.
func bearerOrCookie(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	tok, _ := c.Cookie(sessionCookie)
	return tok
}
