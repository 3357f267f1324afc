package connector

import "panicless-backend/internal/apperr"

var (
	ErrUnknownProvider = apperr.Validation("provider must be one of: anthropic, gemini, chatgpt")
	ErrEmptyToken      = apperr.Validation("api_token cannot be empty")
	ErrNotFound        = apperr.NotFound("connector not found")
	ErrInactive        = apperr.Validation("connector is disabled")
)
