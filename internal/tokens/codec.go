package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Codec signs and parses access and refresh tokens. The two secrets are
// independent: leaking the access secret must not let anyone forge the
// longer-lived refresh tokens.
type Codec struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func (c *Codec) SignAccess(p SignPayload) (string, error) {
	claims := newClaims(p, time.Now().Add(c.AccessTTL), "")
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.AccessSecret)
}

func (c *Codec) SignRefresh(p SignPayload) (string, error) {
	claims := newClaims(p, time.Now().Add(c.RefreshTTL), uuid.NewString())
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.RefreshSecret)
}

func (c *Codec) ParseAccess(tokenStr string) (*AuthClaims, error) {
	return parse(tokenStr, c.AccessSecret)
}

func (c *Codec) ParseRefresh(tokenStr string) (*AuthClaims, error) {
	return parse(tokenStr, c.RefreshSecret)
}

func parse(tokenStr string, secret []byte) (*AuthClaims, error) {
	var claims AuthClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
