package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/internal/logging"
	"github.com/layer-3/sentinel/service"
)

// Context keys set by the strategies
const (
	principalKey    = "principal"
	renewalTokenKey = "renewalToken"
)

var errMissingCredentials = fmt.Errorf("%w: username and password are required", core.ErrInvalidInput)

// LocalAuth validates a username and password from the JSON body.
func LocalAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}

		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, errMissingCredentials)
			return
		}

		principal, err := authService.ValidateCredentials(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// BearerAuth validates a bearer access token and applies the role gate.
func BearerAuth(authService *service.AuthService, roles []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortWithError(c, core.ErrUnauthenticated)
			return
		}

		principal, err := authService.Authorize(c.Request.Context(), token, roles)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// BearerRenewalAuth validates the renewal token embedded in a bearer access
// token against the one stored for its principal.
func BearerRenewalAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortWithError(c, core.ErrUnauthenticated)
			return
		}

		principalID, renewalToken, err := authService.RenewalCredentials(token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		principal, err := authService.VerifyRenewal(c.Request.Context(), principalID, renewalToken)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(principalKey, principal.Public())
		c.Set(renewalTokenKey, renewalToken)
		c.Next()
	}
}

// RequestLogger logs each request once it has been handled.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")

	// Check if the Authorization header is present and in correct format
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func principalFrom(c *gin.Context) (*core.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}
	principal, ok := v.(*core.Principal)
	return principal, ok && principal != nil
}

func abortWithError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// errorStatus maps the error taxonomy to a status and a message that does
// not reveal which check failed.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrTokenExpired):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "Username already exists"
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrPrincipalNotFound):
		return http.StatusNotFound, "Principal not found"
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Service unavailable"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
