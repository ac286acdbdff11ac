package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/paylink/reconciler/internal/port/outbound"
	apperrors "github.com/paylink/reconciler/internal/utils/errors"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// ClaimsKey is the context key for operator claims.
	ClaimsKey = "operator_claims"
)

// RequireAuth returns a middleware that validates operator bearer tokens.
// A nil validator means authentication is disabled and every request passes.
func RequireAuth(validator outbound.TokenValidatorPort) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			c.Next()
			return
		}

		token := extractBearerToken(c)
		if token == "" {
			abort(c, apperrors.Unauthorized("", "Authorization header required"))
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			_ = c.Error(err)
			abort(c, apperrors.Unauthorized("INVALID_TOKEN", "Invalid or expired token"))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireRole returns a middleware that requires the authenticated operator to
// hold role. It passes through when authentication is disabled.
func RequireRole(validator outbound.TokenValidatorPort, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil || role == "" {
			c.Next()
			return
		}

		claims := GetClaims(c)
		if claims == nil {
			abort(c, apperrors.Unauthorized("", "Operator not authenticated"))
			return
		}
		if !claims.HasRole(role) {
			abort(c, apperrors.Forbidden("Insufficient permissions"))
			return
		}

		c.Next()
	}
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
}

// GetClaims returns the operator claims from context, or nil.
func GetClaims(c *gin.Context) *outbound.OperatorClaims {
	if val, exists := c.Get(ClaimsKey); exists {
		if claims, ok := val.(*outbound.OperatorClaims); ok {
			return claims
		}
	}
	return nil
}

// GetSubject returns the authenticated operator, or an empty string.
func GetSubject(c *gin.Context) string {
	if claims := GetClaims(c); claims != nil {
		return claims.Subject
	}
	return ""
}

func abort(c *gin.Context, err *apperrors.AppError) {
	status := err.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, err.ToResponse(GetRequestID(c)))
}
