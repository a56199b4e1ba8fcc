package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rakadenta/cakeorder/internal/audit"
	"github.com/rakadenta/cakeorder/internal/logging"
	mw "github.com/rakadenta/cakeorder/internal/middleware"
	"github.com/rakadenta/cakeorder/internal/mykafka"
	"github.com/rakadenta/cakeorder/internal/service"
	"github.com/rakadenta/cakeorder/internal/tokens"
)

const authEventsTopic = "auth_events"

type AuthHTTP struct {
	Svc      *service.AuthService
	Producer *mykafka.Producer
	Audit    *audit.Indexer
	Prod     bool
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req service.RegisterReq
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	payload, err := h.Svc.Register(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrConflict):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			l.Error("register_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	h.publish(c, "user_registered", payload)

	return c.JSON(http.StatusCreated, echo.Map{"status": "success"})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	payload, err := h.Svc.ValidateUser(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			l.Warn("login_failed", "status", 401, "reason", "invalid credentials")
			return echo.NewHTTPError(http.StatusUnauthorized, service.ErrInvalidCredentials.Error())
		}
		l.Error("login_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	pair, err := h.Svc.Login(ctx, payload)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.SetCookie(RefreshCookie(pair.Refresh, pair.ExpiresAt, h.Prod))

	h.publish(c, "user_logged_in", payload)

	return c.JSON(http.StatusCreated, echo.Map{
		"status": "success",
		"data":   echo.Map{"access": pair.Access},
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	payload := c.Get(mw.ContextPayload).(tokens.SignPayload)
	oldRefresh := c.Get(mw.ContextRefreshToken).(string)

	pair, err := h.Svc.Refresh(ctx, oldRefresh, payload)
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalid) {
			c.SetCookie(DeleteRefreshCookie(h.Prod))
			return echo.NewHTTPError(http.StatusUnauthorized, service.ErrTokenInvalid.Error())
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.SetCookie(RefreshCookie(pair.Refresh, pair.ExpiresAt, h.Prod))

	return c.JSON(http.StatusCreated, echo.Map{
		"status": "success",
		"data":   echo.Map{"access": pair.Access},
	})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	payload := c.Get(mw.ContextPayload).(tokens.SignPayload)
	refresh := c.Get(mw.ContextRefreshToken).(string)

	if err := h.Svc.Logout(ctx, refresh); err != nil {
		// an already-revoked or unknown token is still a successful logout
		// from the caller's point of view
		if !errors.Is(err, service.ErrTokenInvalid) {
			l.Error("logout_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	c.SetCookie(DeleteRefreshCookie(h.Prod))

	h.publish(c, "user_logged_out", payload)

	l.Info("logout_successful")
	return c.JSON(http.StatusCreated, echo.Map{"status": "success"})
}

// publish sends the event to kafka and the audit index best-effort; a
// broken broker or ES node must not fail the auth operation itself.
func (h *AuthHTTP) publish(c echo.Context, eventType string, payload tokens.SignPayload) {
	l := logging.FromContext(c.Request().Context())

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	event := map[string]any{
		"type":     eventType,
		"user_id":  payload.ID,
		"username": payload.Username,
	}
	if err := h.Producer.PublishEvent(ctx, authEventsTopic, fmt.Sprint(payload.ID), event); err != nil {
		l.Warn("kafka_publish_error", "event", eventType, "error", err)
	}

	if err := h.Audit.IndexEvent(ctx, audit.Event{
		Type:     eventType,
		UserID:   payload.ID.String(),
		Username: payload.Username,
		At:       time.Now().UTC(),
	}); err != nil {
		l.Warn("audit_index_error", "event", eventType, "error", err)
	}
}
