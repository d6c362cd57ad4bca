package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authsession/internal/logging"
	"github.com/Skotchmaster/authsession/internal/models"
	"github.com/Skotchmaster/authsession/internal/tokens"
)

const (
	ctxSubject     = "subject"
	ctxRole        = "role"
	ctxAccessToken = "accessToken"
)

type AccessVerifier interface {
	VerifyAccess(accessToken string) (*tokens.AccessClaims, error)
}

type AuthMiddleware struct {
	Verifier AccessVerifier
}

type ValidatorFunc func(claims *tokens.AccessClaims) error

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, nil)
}

func (m *AuthMiddleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, func(claims *tokens.AccessClaims) error {
		if claims.Role != string(models.RoleAdmin) {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return nil
	})
}

func (m *AuthMiddleware) requireAuthWithValidator(next echo.HandlerFunc, validator ValidatorFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		l := logging.FromContext(c.Request().Context()).With("middleware", "require_auth")

		raw := accessTokenFrom(c)
		if raw == "" {
			l.Warn("auth_failed", "status", 401, "reason", "missing access token")
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := m.Verifier.VerifyAccess(raw)
		if err != nil {
			return toHTTPError(l, "auth_failed", err)
		}

		if validator != nil {
			if vErr := validator(claims); vErr != nil {
				l.Warn("auth_failed", "status", 403, "subject", claims.Subject, "reason", "validator rejected")
				return vErr
			}
		}

		c.Set(ctxSubject, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Set(ctxAccessToken, raw)
		return next(c)
	}
}

func bearerToken(c echo.Context) (scheme, token string, ok bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok = strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "", false
	}
	return scheme, strings.TrimSpace(token), true
}

// accessTokenFrom reads a bearer token, falling back to the access cookie.
func accessTokenFrom(c echo.Context) string {
	if _, token, ok := bearerToken(c); ok {
		return token
	}
	return cookieValue(c, accessCookie)
}

func accessToken(c echo.Context) string {
	v, _ := c.Get(ctxAccessToken).(string)
	return v
}
