package repo

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicate     = errors.New("duplicate value")
)

type GormRepo struct {
	DB *gorm.DB
}

// Tokens are stored as sha256 hex so a database dump alone is not enough
// to replay a session.
func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
