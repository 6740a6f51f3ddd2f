package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/pkg/enums"
)

// AccessTokenClaims is the subset of the identity provider's token the API
// relies on. The user id travels in the standard subject claim.
type AccessTokenClaims struct {
	Email string         `json:"email,omitempty"`
	Role  enums.UserRole `json:"user_role"`
	jwt.RegisteredClaims
}

// UserID parses the subject as a user id.
func (c *AccessTokenClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// IsAdmin reports whether the caller may act on behalf of other users.
func (c *AccessTokenClaims) IsAdmin() bool {
	return c != nil && c.Role == enums.UserRoleAdmin
}

// AccessTokenPayload captures the data needed to mint a token locally, used
// by tests and local tooling that stand in for the identity provider.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
}
