package outbound

import "time"

// OperatorClaims are the claims carried by an operator access token.
type OperatorClaims struct {
	Subject   string
	Roles     []string
	ExpiresAt time.Time
}

// HasRole returns true if the claims include role.
func (c *OperatorClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TokenValidatorPort validates operator access tokens.
type TokenValidatorPort interface {
	// ValidateToken validates a bearer token and returns its claims.
	ValidateToken(token string) (*OperatorClaims, error)
}
