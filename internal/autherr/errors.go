// Package autherr defines the error kinds returned by the authentication
// and session engines. Every error carries an oops code equal to its Kind,
// so the boundary layer can map it to a transport status without string
// matching on messages.
package autherr

import (
	"github.com/samber/oops"
)

type Kind string

const (
	KindUnknown              Kind = ""
	KindValidation           Kind = "VALIDATION"
	KindInvalidCredentials   Kind = "INVALID_CREDENTIALS"
	KindAccountNotFound      Kind = "ACCOUNT_NOT_FOUND"
	KindRefreshTokenNotFound Kind = "REFRESH_TOKEN_NOT_FOUND"
	KindTokenInvalid         Kind = "TOKEN_INVALID"
	KindTokenExpired         Kind = "TOKEN_EXPIRED"
	KindConflict             Kind = "CONFLICT"
	KindStoreUnavailable     Kind = "STORE_UNAVAILABLE"
	KindForbidden            Kind = "FORBIDDEN"
)

var kinds = []Kind{
	KindValidation,
	KindInvalidCredentials,
	KindAccountNotFound,
	KindRefreshTokenNotFound,
	KindTokenInvalid,
	KindTokenExpired,
	KindConflict,
	KindStoreUnavailable,
	KindForbidden,
}

// New builds an error of the given kind. kv are key/value pairs attached as
// oops context.
func New(kind Kind, msg string, kv ...any) error {
	return oops.Code(string(kind)).With(kv...).Errorf("%s", msg)
}

// Wrap classifies a lower level failure, keeping it as the cause.
func Wrap(kind Kind, err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(string(kind)).With(kv...).Wrapf(err, "%s", msg)
}

func Validation(msg string, kv ...any) error { return New(KindValidation, msg, kv...) }

func InvalidCredentials() error {
	return New(KindInvalidCredentials, "invalid email or password")
}

func AccountNotFound(kv ...any) error { return New(KindAccountNotFound, "account not found", kv...) }

func RefreshTokenNotFound() error {
	return New(KindRefreshTokenNotFound, "refresh token not found")
}

func Conflict(msg string, kv ...any) error { return New(KindConflict, msg, kv...) }

func Forbidden(msg string, kv ...any) error { return New(KindForbidden, msg, kv...) }

// StoreUnavailable wraps a driver failure.
func StoreUnavailable(err error, op string) error {
	return Wrap(KindStoreUnavailable, err, "store unavailable", "operation", op)
}

// KindOf reports the kind of err, or KindUnknown for errors that were not
// produced by this package.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindUnknown
	}
	code := oopsErr.Code()
	for _, k := range kinds {
		if code == string(k) {
			return k
		}
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
