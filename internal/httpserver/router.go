package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	mw "github.com/rakadenta/cakeorder/internal/middleware"
	"github.com/rakadenta/cakeorder/internal/models"
)

type Deps struct {
	AuthHandler  *AuthHTTP
	UserHandler  *UserHTTP
	AdminHandler *AdminHTTP
	Auth         *mw.AuthMiddleware
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	v1 := e.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh, d.Auth.RequireRefresh)
	auth.POST("/logout", d.AuthHandler.Logout, d.Auth.RequireRefresh)

	users := v1.Group("/users", d.Auth.RequireAuth)
	users.PATCH("/current/email", d.UserHandler.ChangeEmail)
	users.PATCH("/current/username", d.UserHandler.ChangeUsername)
	users.PATCH("/current/password", d.UserHandler.ChangePassword)

	admin := v1.Group("/admin", d.Auth.RequireAuth, mw.RequireRoles(models.RoleSuper, models.RoleAdmin))
	admin.GET("/sessions", d.AdminHandler.SearchSessions)
}
