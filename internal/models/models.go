package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleSuper Role = "SUPER"
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Allowed reports whether the role is one of the given roles.
func (r Role) Allowed(roles ...Role) bool {
	for _, v := range roles {
		if r == v {
			return true
		}
	}
	return false
}

type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey"       json:"id"`
	Name         string         `gorm:"not null"                   json:"name"`
	Username     string         `gorm:"uniqueIndex;not null"       json:"username"`
	Email        string         `gorm:"uniqueIndex;not null"       json:"email"`
	PasswordHash string         `gorm:"not null"                   json:"-"`
	Role         Role           `gorm:"not null"                   json:"role"`
	TokenVersion int            `gorm:"not null;default:0"         json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index"                      json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RefreshToken rows are append-only: only the Revoked flag ever changes,
// so the table doubles as an audit trail of issued sessions.
type RefreshToken struct {
	Token     string    `gorm:"primaryKey"               json:"token"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	JTI       string    `gorm:"uniqueIndex;not null"     json:"jti"`
	ExpiresAt time.Time `gorm:"not null"                 json:"expires_at"`
	Revoked   bool      `gorm:"not null;default:false"   json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}
