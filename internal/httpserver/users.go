package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authsession/internal/logging"
	"github.com/Skotchmaster/authsession/internal/service"
)

type UserHandler struct {
	Svc *service.AuthService
}

func (h *UserHandler) Current(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_current")

	view, err := h.Svc.GetCurrentAccount(ctx, accessToken(c))
	if err != nil {
		return toHTTPError(l, "get_current_failed", err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *UserHandler) GetByID(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_get")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("get_user_error", "status", 400, "id", c.Param("id"))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	view, err := h.Svc.GetAccount(ctx, id)
	if err != nil {
		return toHTTPError(l, "get_user_failed", err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *UserHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_list_users")

	var page, size int
	if err := echo.QueryParamsBinder(c).
		Int("page", &page).
		Int("size", &size).
		BindError(); err != nil {
		l.Warn("list_users_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid pagination")
	}

	res, err := h.Svc.ListAccounts(ctx, page, size)
	if err != nil {
		return toHTTPError(l, "list_users_failed", err)
	}
	return c.JSON(http.StatusOK, res)
}
