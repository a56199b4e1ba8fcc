package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rakadenta/cakeorder/internal/models"
)

// Add inserts a fresh refresh-token row. The token column is the primary
// key, so a duplicate insert fails instead of silently overwriting.
func (r *GormRepo) Add(ctx context.Context, userID uuid.UUID, jti, token string, expiresAt time.Time) error {
	row := models.RefreshToken{
		Token:     sha256Hex(token),
		UserID:    userID,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Get returns the stored row for a token only while it is still live:
// present, not revoked and not past its expiry.
func (r *GormRepo) Get(ctx context.Context, token string) (*models.RefreshToken, error) {
	var row models.RefreshToken
	err := r.DB.WithContext(ctx).
		Where("token = ? AND revoked = ?", sha256Hex(token), false).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if time.Now().After(row.ExpiresAt) {
		return nil, ErrTokenNotFound
	}
	return &row, nil
}

// Revoke flips the revoked flag. Revoking an already-revoked or unknown
// token reports ErrTokenNotFound; callers decide whether that matters.
func (r *GormRepo) Revoke(ctx context.Context, token string) error {
	res := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ? AND revoked = ?", sha256Hex(token), false).
		Update("revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// RevokeAllByUserID invalidates every outstanding refresh token the user
// owns. Zero affected rows is fine here: the user may simply hold no
// live sessions.
func (r *GormRepo) RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}

// Rotate revokes the old token and inserts its successor in one
// transaction. The revoked = false predicate makes rotation single-use:
// of two concurrent calls with the same old token, exactly one sees a
// non-zero row count and commits.
func (r *GormRepo) Rotate(ctx context.Context, oldToken string, userID uuid.UUID, jti, newToken string, expiresAt time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("token = ? AND revoked = ?", sha256Hex(oldToken), false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenNotFound
		}

		row := models.RefreshToken{
			Token:     sha256Hex(newToken),
			UserID:    userID,
			JTI:       jti,
			ExpiresAt: expiresAt,
		}
		return tx.Create(&row).Error
	})
}
