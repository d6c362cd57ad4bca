package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Skotchmaster/authsession/internal/logging"
)

// Check is a readiness probe for one backing service.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Deps struct {
	Auth       *AuthHandler
	Users      *UserHandler
	Middleware *AuthMiddleware
	Checks     []Check
	Gatherer   prometheus.Gatherer

	// CSRF enables the double submit check on /api. Nil disables it.
	CSRF *CSRFConfig
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", d.ready)
	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")
	if d.CSRF != nil {
		api.Use(CSRF(*d.CSRF))
	}

	auth := api.Group("/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login)
	auth.POST("/refreshtoken", d.Auth.Refresh)
	auth.POST("/logout", d.Auth.LogOut)
	auth.POST("/change-password", d.Auth.ChangePassword, d.Middleware.RequireAuth)

	users := api.Group("/users", d.Middleware.RequireAuth)
	users.GET("/current", d.Users.Current)
	users.GET("/:id", d.Users.GetByID)

	admin := api.Group("/admin", d.Middleware.RequireAdmin)
	admin.GET("/users", d.Users.List)
}

func (d *Deps) ready(c echo.Context) error {
	ctx := c.Request().Context()
	for _, chk := range d.Checks {
		if err := chk.Fn(ctx); err != nil {
			logging.FromContext(ctx).Warn("not_ready", "check", chk.Name, "error", err)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "check": chk.Name})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
