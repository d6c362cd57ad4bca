package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authsession/internal/autherr"
)

var kindStatus = map[autherr.Kind]int{
	autherr.KindValidation:           http.StatusBadRequest,
	autherr.KindInvalidCredentials:   http.StatusUnauthorized,
	autherr.KindAccountNotFound:      http.StatusNotFound,
	autherr.KindRefreshTokenNotFound: http.StatusUnauthorized,
	autherr.KindTokenInvalid:         http.StatusUnauthorized,
	autherr.KindTokenExpired:         http.StatusUnauthorized,
	autherr.KindConflict:             http.StatusConflict,
	autherr.KindStoreUnavailable:     http.StatusServiceUnavailable,
	autherr.KindForbidden:            http.StatusForbidden,
}

// StatusOf maps an engine error to an HTTP status. Unclassified errors are 500.
func StatusOf(err error) int {
	if code, ok := kindStatus[autherr.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func publicMessage(kind autherr.Kind, err error) string {
	switch kind {
	case autherr.KindTokenExpired:
		return "token expired"
	case autherr.KindTokenInvalid:
		return "invalid token"
	case autherr.KindRefreshTokenNotFound:
		return "refresh token not found"
	case autherr.KindStoreUnavailable:
		return "service unavailable"
	case autherr.KindUnknown:
		return "internal error"
	default:
		return err.Error()
	}
}

// toHTTPError logs err under event and converts it for echo's error handler.
// The original error stays attached as Internal.
func toHTTPError(l *slog.Logger, event string, err error) *echo.HTTPError {
	kind := autherr.KindOf(err)
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		l.Error(event, "status", status, "kind", string(kind), "error", err)
	} else {
		l.Warn(event, "status", status, "kind", string(kind), "error", err)
	}
	return echo.NewHTTPError(status, publicMessage(kind, err)).SetInternal(err)
}
