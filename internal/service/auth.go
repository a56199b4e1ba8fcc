package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rakadenta/cakeorder/internal/hash"
	"github.com/rakadenta/cakeorder/internal/logging"
	"github.com/rakadenta/cakeorder/internal/models"
	"github.com/rakadenta/cakeorder/internal/repo"
	"github.com/rakadenta/cakeorder/internal/tokens"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

type AuthService struct {
	Repo  *repo.GormRepo
	Codec *tokens.Codec
}

type TokenPair struct {
	Access    string
	Refresh   string
	ExpiresAt time.Time
}

type RegisterReq struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// validate reports every failing rule at once, not just the first, so a
// client can fix the whole form in one round trip.
func (req RegisterReq) validate() error {
	var problems []string
	if req.Name == "" {
		problems = append(problems, "name must not be empty")
	}
	if len(req.Username) < 3 {
		problems = append(problems, "username must be at least 3 characters")
	}
	if !usernameRe.MatchString(req.Username) {
		problems = append(problems, "username can only be letters and numbers")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		problems = append(problems, "email is not valid")
	}
	if len(req.Password) < 8 {
		problems = append(problems, "password must be at least 8 characters")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// ValidateUser checks a username/password pair and returns the payload to
// embed in signed tokens. A missing user and a wrong password produce the
// same error so responses cannot be used to enumerate accounts.
func (s *AuthService) ValidateUser(ctx context.Context, username, password string) (tokens.SignPayload, error) {
	user, err := s.Repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return tokens.SignPayload{}, ErrInvalidCredentials
		}
		return tokens.SignPayload{}, err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		return tokens.SignPayload{}, ErrInvalidCredentials
	}
	return payloadFromUser(user), nil
}

// Register creates the user and returns the payload of the created row,
// so callers can attribute follow-up events to the new user's id.
func (s *AuthService) Register(ctx context.Context, req RegisterReq) (tokens.SignPayload, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if err := req.validate(); err != nil {
		return tokens.SignPayload{}, err
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("register_error", "reason", "cannot hash the password", "error", err)
		return tokens.SignPayload{}, err
	}

	user := models.User{
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
	}
	if err := s.Repo.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			l.Warn("register_failed", "status", 400, "reason", "duplicate username or email")
			return tokens.SignPayload{}, ErrConflict
		}
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", err)
		return tokens.SignPayload{}, err
	}

	l.Info("register_success", "username", req.Username)
	return payloadFromUser(&user), nil
}

// Login signs a fresh access/refresh pair for an already-verified payload
// and persists the refresh token. This is the only path that creates a
// brand-new, non-rotated refresh row.
func (s *AuthService) Login(ctx context.Context, payload tokens.SignPayload) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", payload.Username)

	access, err := s.Codec.SignAccess(payload)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot sign access token", "error", err)
		return nil, err
	}
	refresh, err := s.Codec.SignRefresh(payload)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot sign refresh token", "error", err)
		return nil, err
	}

	claims, err := s.Codec.ParseRefresh(refresh)
	if err != nil {
		return nil, err
	}
	expiresAt := claims.ExpiresAt.Time

	if err := s.Repo.Add(ctx, payload.ID, claims.ID, refresh, expiresAt); err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot persist refresh token", "error", err)
		return nil, err
	}

	l.Info("login_successful")
	return &TokenPair{Access: access, Refresh: refresh, ExpiresAt: expiresAt}, nil
}

// Refresh rotates the presented refresh token: the old row is revoked and
// the new one inserted atomically, so a given token is redeemable at most
// once no matter how many calls race on it.
func (s *AuthService) Refresh(ctx context.Context, oldRefresh string, payload tokens.SignPayload) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh", "username", payload.Username)

	access, err := s.Codec.SignAccess(payload)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Codec.SignRefresh(payload)
	if err != nil {
		return nil, err
	}

	claims, err := s.Codec.ParseRefresh(refresh)
	if err != nil {
		return nil, err
	}
	expiresAt := claims.ExpiresAt.Time

	if err := s.Repo.Rotate(ctx, oldRefresh, payload.ID, claims.ID, refresh, expiresAt); err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			l.Warn("refresh_failed", "status", 401, "reason", "token already rotated or revoked")
			return nil, ErrTokenInvalid
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}

	l.Info("refresh_successful")
	return &TokenPair{Access: access, Refresh: refresh, ExpiresAt: expiresAt}, nil
}

// Logout revokes the refresh token. The store reports unknown tokens as
// ErrTokenInvalid; the HTTP layer treats that as success.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.Repo.Revoke(ctx, refreshToken); err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			return ErrTokenInvalid
		}
		return err
	}
	return nil
}

// Get is a liveness check on a refresh token, used before sensitive
// account mutations independently of the token's signature validity.
func (s *AuthService) Get(ctx context.Context, refreshToken string) (*models.RefreshToken, error) {
	row, err := s.Repo.Get(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	return row, nil
}

func (s *AuthService) RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error {
	return s.Repo.RevokeAllByUserID(ctx, userID)
}

func payloadFromUser(u *models.User) tokens.SignPayload {
	return tokens.SignPayload{
		ID:           u.ID,
		Name:         u.Name,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		TokenVersion: u.TokenVersion,
	}
}
