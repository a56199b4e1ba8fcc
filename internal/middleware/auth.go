package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rakadenta/cakeorder/internal/logging"
	"github.com/rakadenta/cakeorder/internal/models"
	"github.com/rakadenta/cakeorder/internal/service"
	"github.com/rakadenta/cakeorder/internal/tokens"
)

const (
	ContextPayload      = "payload"
	ContextRefreshToken = "refresh_token"
	RefreshCookieName   = "refresh"
)

type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type AuthMiddleware struct {
	Codec *tokens.Codec
	Users UserLookup
}

func NewAuthMiddleware(codec *tokens.Codec, users UserLookup) *AuthMiddleware {
	return &AuthMiddleware{Codec: codec, Users: users}
}

// RequireAuth validates the bearer access token and then re-checks the
// embedded token version against the user row. JWTs cannot be revoked by
// signature alone; the version comparison is what turns "log out
// everywhere" into a per-request O(1) check.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := m.Codec.ParseAccess(tokenStr)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		payload, err := m.guardVersion(c, claims)
		if err != nil {
			return err
		}

		c.Set(ContextPayload, payload)
		return next(c)
	}
}

// RequireRefresh validates the refresh cookie's signature and version.
// Store liveness is checked later by the operation itself (rotation or
// revocation), inside its transaction.
func (m *AuthMiddleware) RequireRefresh(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(RefreshCookieName)
		if err != nil || cookie.Value == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
		}

		claims, err := m.Codec.ParseRefresh(cookie.Value)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		payload, err := m.guardVersion(c, claims)
		if err != nil {
			return err
		}

		c.Set(ContextPayload, payload)
		c.Set(ContextRefreshToken, cookie.Value)
		return next(c)
	}
}

func (m *AuthMiddleware) guardVersion(c echo.Context, claims *tokens.AuthClaims) (tokens.SignPayload, error) {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("middleware", "auth")

	user, err := m.Users.GetByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			l.Warn("auth_failed", "status", 401, "reason", "user no longer exists")
			return tokens.SignPayload{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		return tokens.SignPayload{}, echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if claims.TokenVersion != user.TokenVersion {
		l.Warn("auth_failed", "status", 401, "reason", "stale token version")
		return tokens.SignPayload{}, echo.NewHTTPError(http.StatusUnauthorized, service.ErrStaleToken.Error())
	}

	payload, err := claims.Payload()
	if err != nil {
		return tokens.SignPayload{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}
	return payload, nil
}

// RequireRoles gates a route to the given roles. Runs after RequireAuth.
func RequireRoles(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			payload, ok := c.Get(ContextPayload).(tokens.SignPayload)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			if !payload.Role.Allowed(roles...) {
				return echo.NewHTTPError(http.StatusForbidden, "not enough rights")
			}
			return next(c)
		}
	}
}
