package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rakadenta/cakeorder/internal/models"
)

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *GormRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ChangeEmail updates the email, bumps the token version and revokes all
// outstanding refresh tokens in one transaction. If any step fails the
// whole change rolls back, so tokens never outlive a committed credential
// change and a failed change never strands a logged-in user.
func (r *GormRepo) ChangeEmail(ctx context.Context, id uuid.UUID, email string) error {
	return r.changeCredential(ctx, id, map[string]any{"email": email})
}

func (r *GormRepo) ChangeUsername(ctx context.Context, id uuid.UUID, username string) error {
	return r.changeCredential(ctx, id, map[string]any{"username": username})
}

func (r *GormRepo) ChangePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.changeCredential(ctx, id, map[string]any{"password_hash": passwordHash})
}

func (r *GormRepo) changeCredential(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	fields["token_version"] = gorm.Expr("token_version + 1")

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return ErrDuplicate
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}

		return tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked = ?", id, false).
			Update("revoked", true).Error
	})
}
