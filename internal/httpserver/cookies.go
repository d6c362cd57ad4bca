package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authsession/internal/service"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

func CreateCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func DeleteCookie(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func setSessionCookies(c echo.Context, s *service.Session) {
	c.SetCookie(CreateCookie(accessCookie, s.AccessToken, "/", s.AccessExp))
	c.SetCookie(CreateCookie(refreshCookie, s.RefreshToken, "/", s.RefreshExp))
}

func clearAuthCookies(c echo.Context) {
	c.SetCookie(DeleteCookie(accessCookie, "/"))
	c.SetCookie(DeleteCookie(refreshCookie, "/"))
}

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
