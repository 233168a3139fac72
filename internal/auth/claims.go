package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

// TokenTypeAccess is the only type accepted here. Refresh tokens belong to
// the identity service and are rejected by Verify.
const TokenTypeAccess TokenType = "access"

// Claims are the only supported JWT claims shape for this service.
// Role is informational for route gating; call authorization re-reads the
// user's role from the directory.
type Claims struct {
	jwt.RegisteredClaims

	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
