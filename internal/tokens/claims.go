package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rakadenta/cakeorder/internal/models"
)

// SignPayload is the identity snapshot embedded in both access and refresh
// tokens. TokenVersion is the value at signing time; the guard compares it
// against the user row on every request.
type SignPayload struct {
	ID           uuid.UUID
	Name         string
	Username     string
	Email        string
	Role         models.Role
	TokenVersion int
}

type AuthClaims struct {
	Name         string      `json:"name"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	Role         models.Role `json:"role"`
	TokenVersion int         `json:"token_version"`
	jwt.RegisteredClaims
}

func (c *AuthClaims) Payload() (SignPayload, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return SignPayload{}, err
	}
	return SignPayload{
		ID:           id,
		Name:         c.Name,
		Username:     c.Username,
		Email:        c.Email,
		Role:         c.Role,
		TokenVersion: c.TokenVersion,
	}, nil
}

func newClaims(p SignPayload, exp time.Time, jti string) AuthClaims {
	return AuthClaims{
		Name:         p.Name,
		Username:     p.Username,
		Email:        p.Email,
		Role:         p.Role,
		TokenVersion: p.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        jti,
		},
	}
}
