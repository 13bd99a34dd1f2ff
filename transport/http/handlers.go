package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

type principalView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func viewOf(p *core.Principal) principalView {
	return principalView{
		ID:        p.ID,
		Username:  p.Username,
		Nickname:  p.Nickname,
		Role:      p.Role,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// writeSession renders a session. The renewal token travels inside the
// access token and is never returned on its own.
func writeSession(c *gin.Context, session *core.Session) {
	expiresIn := int64(time.Until(session.AccessExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": session.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
		"user":         viewOf(session.Principal),
	})
}

// SignUp registers a principal and returns its first session
func (h *AuthHandlers) SignUp(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Nickname string `json:"nickname" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: username, password and nickname are required", core.ErrInvalidInput))
		return
	}

	session, err := h.authService.SignUp(c.Request.Context(), req.Username, req.Password, req.Nickname)
	if err != nil {
		abortWithError(c, err)
		return
	}

	writeSession(c, session)
}

// SignIn issues a session for the principal validated by LocalAuth
func (h *AuthHandlers) SignIn(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Principal not found in context"})
		return
	}

	session, err := h.authService.SignIn(c.Request.Context(), principal)
	if err != nil {
		abortWithError(c, err)
		return
	}

	writeSession(c, session)
}

// Renew issues a fresh access token for the renewal token verified by
// BearerRenewalAuth
func (h *AuthHandlers) Renew(c *gin.Context) {
	principal, ok := principalFrom(c)
	renewalToken := c.GetString(renewalTokenKey)
	if !ok || renewalToken == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Principal not found in context"})
		return
	}

	session, err := h.authService.IssueAccess(principal, renewalToken)
	if err != nil {
		abortWithError(c, err)
		return
	}

	writeSession(c, session)
}

// SignOut clears the principal's renewal token
func (h *AuthHandlers) SignOut(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Principal not found in context"})
		return
	}

	if err := h.authService.SignOut(c.Request.Context(), principal.ID); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

// Me returns the authenticated principal
func (h *AuthHandlers) Me(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Principal not found in context"})
		return
	}

	c.JSON(http.StatusOK, viewOf(principal))
}

// Authorize checks if a principal is authorized
func (h *AuthHandlers) Authorize(c *gin.Context) {
	// Reaching this handler means BearerAuth already passed
	principal, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Principal not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized":   true,
		"principal_id": principal.ID,
		"role":         principal.Role,
	})
}

// GetPrincipal returns any principal by id
func (h *AuthHandlers) GetPrincipal(c *gin.Context) {
	principal, err := h.authService.GetPrincipal(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, viewOf(principal))
}

// SetRole changes a principal's role
func (h *AuthHandlers) SetRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	principal, err := h.authService.SetRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, viewOf(principal))
}
