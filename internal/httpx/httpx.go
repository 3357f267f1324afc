// Package httpx holds the JSON response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"panicless-backend/internal/apperr"
	"panicless-backend/internal/observability"
)

const MaxJSONBodyBytes = 1 << 20

var ErrInvalidJSON = apperr.Validation("invalid json body")

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// WriteAppError maps err to a status by its kind. Internal errors are logged
// under event and sent to sentry; the caller only sees a generic message.
func WriteAppError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, event string, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		observability.CaptureError(r.Context(), err)
		if logger != nil {
			logger.Error(event, map[string]any{
				"error":      err,
				"path":       r.URL.Path,
				"request_id": observability.RequestID(r.Context()),
			})
		}
	}

	WriteError(w, apperr.Status(kind), apperr.Public(err))
}

func WriteTooManyRequests(w http.ResponseWriter, retryAfter time.Duration, message string) {
	seconds := int(retryAfter.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteError(w, http.StatusTooManyRequests, message)
}

// DecodeJSON reads a single JSON object into dst, rejecting unknown fields
// and bodies over MaxJSONBodyBytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return ErrInvalidJSON
	}

	return nil
}

// BearerToken extracts the credential from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func IsJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type"))), "application/json")
}
