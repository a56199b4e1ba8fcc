package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rakadenta/cakeorder/internal/logging"
	mw "github.com/rakadenta/cakeorder/internal/middleware"
	"github.com/rakadenta/cakeorder/internal/service"
	"github.com/rakadenta/cakeorder/internal/tokens"
)

type UserHTTP struct {
	Users *service.UserService
	Auth  *service.AuthService
	Prod  bool
}

// Email and username changes additionally require a live refresh token in
// the store, not just a well-signed access token. Revoking the session is
// enough to block these even inside the access token's validity window.
func (h *UserHTTP) requireLiveRefresh(c echo.Context) error {
	cookie, err := c.Cookie(mw.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return echo.NewHTTPError(http.StatusForbidden, service.ErrTokenInvalid.Error())
	}
	if _, err := h.Auth.Get(c.Request().Context(), cookie.Value); err != nil {
		if errors.Is(err, service.ErrTokenInvalid) {
			return echo.NewHTTPError(http.StatusForbidden, service.ErrTokenInvalid.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return nil
}

func (h *UserHTTP) ChangeEmail(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_change_email")

	if err := h.requireLiveRefresh(c); err != nil {
		return err
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	payload := c.Get(mw.ContextPayload).(tokens.SignPayload)
	if err := h.Users.ChangeEmail(ctx, payload.ID, req.Email, req.Password); err != nil {
		return mapUserErr(l, err)
	}

	// every session was just revoked; do not leave the dead cookie behind
	c.SetCookie(DeleteRefreshCookie(h.Prod))
	return c.JSON(http.StatusOK, echo.Map{"status": "success"})
}

func (h *UserHTTP) ChangeUsername(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_change_username")

	if err := h.requireLiveRefresh(c); err != nil {
		return err
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	payload := c.Get(mw.ContextPayload).(tokens.SignPayload)
	if err := h.Users.ChangeUsername(ctx, payload.ID, req.Username, req.Password); err != nil {
		return mapUserErr(l, err)
	}

	c.SetCookie(DeleteRefreshCookie(h.Prod))
	return c.JSON(http.StatusOK, echo.Map{"status": "success"})
}

func (h *UserHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_change_password")

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	payload := c.Get(mw.ContextPayload).(tokens.SignPayload)
	if err := h.Users.ChangePassword(ctx, payload.ID, req.OldPassword, req.NewPassword); err != nil {
		return mapUserErr(l, err)
	}

	c.SetCookie(DeleteRefreshCookie(h.Prod))
	return c.JSON(http.StatusOK, echo.Map{"status": "success"})
}

func mapUserErr(l *slog.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrPasswordIncorrect),
		errors.Is(err, service.ErrSamePassword):
		l.Warn("request_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		l.Warn("request_failed", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
