// Package maintenance exposes the cron-triggered cleanup of expired opaque
// tokens and stale login attempts. Authorization codes are kept so expiry
// stays observable at exchange time.
package maintenance

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"panicless-backend/internal/httpx"
	"panicless-backend/internal/observability"
)

type LoginAttemptPruner interface {
	DeleteStaleLoginAttempts(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

type TokenPruner interface {
	DeleteExpiredTokens(ctx context.Context, before time.Time, batchSize int) (int64, error)
}

type Result struct {
	DeletedLoginAttempts int64 `json:"deleted_login_attempts"`
	DeletedTokens        int64 `json:"deleted_oauth_tokens"`
}

type CleanupHandler struct {
	logins                LoginAttemptPruner
	tokens                TokenPruner
	logger                *observability.Logger
	cronSecret            string
	loginAttemptRetention time.Duration
	batchSize             int
	now                   func() time.Time
}

func NewCleanupHandler(
	logins LoginAttemptPruner,
	tokens TokenPruner,
	logger *observability.Logger,
	cronSecret string,
	loginAttemptRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &CleanupHandler{
		logins:                logins,
		tokens:                tokens,
		logger:                logger,
		cronSecret:            strings.TrimSpace(cronSecret),
		loginAttemptRetention: loginAttemptRetention,
		batchSize:             batchSize,
		now:                   func() time.Time { return time.Now().UTC() },
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		httpx.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	token, ok := httpx.BearerToken(r)
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) != 1 {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.Run(r.Context())
	if err != nil {
		observability.CaptureError(r.Context(), err)
		h.logger.Error("cleanup_failed", map[string]any{"error": err.Error()})
		httpx.WriteError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	h.logger.Info("cleanup_completed", map[string]any{
		"deleted_login_attempts": result.DeletedLoginAttempts,
		"deleted_oauth_tokens":   result.DeletedTokens,
	})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

// Run deletes at most one batch of each kind of expired row.
func (h *CleanupHandler) Run(ctx context.Context) (Result, error) {
	now := h.now()
	var result Result
	var err error

	result.DeletedTokens, err = h.tokens.DeleteExpiredTokens(ctx, now, h.batchSize)
	if err != nil {
		return result, err
	}

	result.DeletedLoginAttempts, err = h.logins.DeleteStaleLoginAttempts(ctx, now.Add(-h.loginAttemptRetention), h.batchSize)
	if err != nil {
		return result, err
	}

	return result, nil
}
