package oauth

import (
	"errors"

	"panicless-backend/internal/apperr"
)

// Exchange failures stay distinct sentinels so callers and tests can tell
// them apart; Public collapses them before they reach a client.
var (
	ErrInvalidClient           = apperr.Authentication("invalid client credentials")
	ErrUnsupportedResponseType = apperr.Validation("only response_type=code is supported")
	ErrUnsupportedGrant        = apperr.Validation("only grant_type=authorization_code is supported")
	ErrMissingRedirectURI      = apperr.Validation("redirect_uri is required")
	ErrInvalidRequest          = apperr.Validation("invalid request body")

	ErrCodeNotFound     = apperr.Authentication("authorization code not found")
	ErrCodeExpired      = apperr.Validation("authorization code expired")
	ErrCodeUsed         = apperr.Authentication("authorization code already used")
	ErrRedirectMismatch = apperr.Validation("redirect uri mismatch")
)

var (
	errPublicGrantAuthentication = apperr.Authentication("invalid authorization code")
	errPublicGrantValidation     = apperr.Validation("invalid authorization code")
)

// Public hides which code check failed while keeping its kind.
func Public(err error) error {
	switch {
	case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCodeUsed):
		return errPublicGrantAuthentication
	case errors.Is(err, ErrCodeExpired), errors.Is(err, ErrRedirectMismatch):
		return errPublicGrantValidation
	default:
		return err
	}
}

func exchangeResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidClient):
		return "invalid_client"
	case errors.Is(err, ErrUnsupportedGrant):
		return "unsupported_grant"
	case errors.Is(err, ErrCodeNotFound):
		return "code_not_found"
	case errors.Is(err, ErrCodeExpired):
		return "code_expired"
	case errors.Is(err, ErrCodeUsed):
		return "code_used"
	case errors.Is(err, ErrRedirectMismatch):
		return "redirect_mismatch"
	default:
		return "error"
	}
}

func authorizeResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidClient):
		return "invalid_client"
	case errors.Is(err, ErrUnsupportedResponseType):
		return "unsupported_response_type"
	case apperr.KindOf(err) == apperr.KindValidation:
		return "invalid_request"
	default:
		return "error"
	}
}
