package auth

import (
	"time"

	"panicless-backend/internal/apperr"
)

var (
	// ErrInvalidToken is the only error a signed-token verification reports
	// to callers, whatever check failed.
	ErrInvalidToken = apperr.Authentication("invalid or expired token")

	// ErrWrongTokenKind is returned for a valid token of the other kind.
	ErrWrongTokenKind = apperr.Authentication("invalid token type")

	// ErrUnauthenticated is the single gate failure.
	ErrUnauthenticated = apperr.Authentication("invalid or expired token")

	ErrMissingBearer = apperr.Authentication("missing or malformed authorization header")

	ErrInvalidCredentials = apperr.Authentication("invalid credentials")

	ErrUserNotFound        = apperr.NotFound("user not found")
	ErrUsernameTaken       = apperr.Conflict("username already exists")
	ErrEmailTaken          = apperr.Conflict("email already exists")
	ErrOpaqueTokenNotFound = apperr.Authentication("opaque token not found")

	ErrInvalidUsername = apperr.Validation("username must be 3-50 characters of letters, digits, '.', '_' or '-'")
	ErrInvalidEmail    = apperr.Validation("email format is invalid")
	ErrInvalidPassword = apperr.Validation("password must be between 8 and 72 characters")
	ErrInvalidFullName = apperr.Validation("full_name must be at most 255 characters")
)

type ErrLoginLocked struct {
	Until time.Time
}

func (e ErrLoginLocked) Error() string {
	return "login temporarily locked"
}
