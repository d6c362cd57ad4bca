package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authsession/internal/logging"
	"github.com/Skotchmaster/authsession/internal/service"
)

type AuthHandler struct {
	Svc *service.AuthService
	// CanModify decides who may change whose password. Nil means SelfOrAdmin.
	CanModify service.CanModifyFunc
}

type registerRequest struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Patronymic string `json:"patronymic"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	NewPassword string `json:"newPassword"`
	Email       string `json:"email"`
}

type sessionResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Role         string `json:"role"`
}

func writeSession(c echo.Context, s *service.Session) error {
	setSessionCookies(c, s)
	return c.JSON(http.StatusOK, sessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Role:         string(s.Role),
	})
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	sess, err := h.Svc.Register(ctx, service.RegisterInput{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Patronymic: req.Patronymic,
		Email:      req.Email,
		Password:   req.Password,
	})
	if err != nil {
		return toHTTPError(l, "register_failed", err)
	}

	l.Info("register_success", "status", 200)
	return writeSession(c, sess)
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	sess, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return toHTTPError(l, "login_failed", err)
	}

	l.Info("login_successful")
	return writeSession(c, sess)
}

// Refresh takes the refresh token from the body, falling back to the cookie.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.RefreshToken == "" {
		req.RefreshToken = cookieValue(c, refreshCookie)
	}

	sess, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		clearAuthCookies(c)
		return toHTTPError(l, "refresh_failed", err)
	}

	l.Info("refresh_successful")
	return writeSession(c, sess)
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_change_password")

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("change_password_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	change, err := h.Svc.ChangePassword(ctx, service.ChangePasswordInput{
		AccessToken: accessToken(c),
		TargetEmail: req.Email,
		NewPassword: req.NewPassword,
	}, h.CanModify)
	if err != nil {
		return toHTTPError(l, "change_password_failed", err)
	}

	// the caller's own session ends with the password change
	if change.Account.Email == c.Get(ctxSubject) {
		clearAuthCookies(c)
	}
	l.Info("change_password_successful", "account_id", change.Account.ID.String())
	return c.JSON(http.StatusOK, echo.Map{"newPassword": change.NewPassword})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	var req refreshRequest
	_ = c.Bind(&req)
	if req.RefreshToken == "" {
		req.RefreshToken = cookieValue(c, refreshCookie)
	}

	if err := h.Svc.LogOut(ctx, req.RefreshToken); err != nil {
		return toHTTPError(l, "logout_failed", err)
	}

	clearAuthCookies(c)
	l.Info("successful_logout")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}
