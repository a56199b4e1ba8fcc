package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/google/uuid"

	"github.com/rakadenta/cakeorder/internal/hash"
	"github.com/rakadenta/cakeorder/internal/logging"
	"github.com/rakadenta/cakeorder/internal/models"
	"github.com/rakadenta/cakeorder/internal/repo"
)

// UserService owns the credential-changing mutations. Each one bumps the
// user's token version and revokes every outstanding refresh token inside
// the same transaction as the change itself, which is what makes stale
// access tokens rejectable immediately instead of at natural expiry.
type UserService struct {
	Repo *repo.GormRepo
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.Repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) ChangeEmail(ctx context.Context, id uuid.UUID, email, password string) error {
	l := logging.FromContext(ctx).With("svc", "user.change_email")

	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: email is not valid", ErrValidation)
	}
	if err := s.checkPassword(ctx, id, password, ErrPasswordIncorrect); err != nil {
		return err
	}

	if err := s.Repo.ChangeEmail(ctx, id, email); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrConflict
		}
		l.Error("change_email_failed", "error", err)
		return err
	}

	l.Info("email_changed", "user_id", id)
	return nil
}

func (s *UserService) ChangeUsername(ctx context.Context, id uuid.UUID, username, password string) error {
	l := logging.FromContext(ctx).With("svc", "user.change_username")

	if len(username) < 3 || !usernameRe.MatchString(username) {
		return fmt.Errorf("%w: username can only be letters and numbers", ErrValidation)
	}
	if err := s.checkPassword(ctx, id, password, ErrPasswordIncorrect); err != nil {
		return err
	}

	if err := s.Repo.ChangeUsername(ctx, id, username); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrConflict
		}
		l.Error("change_username_failed", "error", err)
		return err
	}

	l.Info("username_changed", "user_id", id)
	return nil
}

func (s *UserService) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) error {
	l := logging.FromContext(ctx).With("svc", "user.change_password")

	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	user, err := s.Repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !hash.CheckPassword(user.PasswordHash, oldPassword) {
		return fmt.Errorf("%w: old password incorrect", ErrPasswordIncorrect)
	}
	if hash.CheckPassword(user.PasswordHash, newPassword) {
		return ErrSamePassword
	}

	newHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.Repo.ChangePassword(ctx, id, newHash); err != nil {
		l.Error("change_password_failed", "error", err)
		return err
	}

	l.Info("password_changed", "user_id", id)
	return nil
}

func (s *UserService) checkPassword(ctx context.Context, id uuid.UUID, password string, mismatchErr error) error {
	user, err := s.Repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		return mismatchErr
	}
	return nil
}
