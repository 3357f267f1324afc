package auth

import (
	"errors"
	"net/http"
	"time"

	"panicless-backend/internal/httpx"
	"panicless-backend/internal/observability"
)

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handler{service: service, logger: logger}
}

type registerRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteAppError(w, r, h.logger, "register_failed", err)
		return
	}

	resp, err := h.service.Register(r.Context(), RegisterInput{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		FullName: body.FullName,
	})
	if err != nil {
		httpx.WriteAppError(w, r, h.logger, "register_failed", err)
		return
	}

	h.logger.Info("user_registered", map[string]any{"user_id": resp.User.ID})
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteAppError(w, r, h.logger, "login_failed", err)
		return
	}

	resp, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		var lockedErr ErrLoginLocked
		if errors.As(err, &lockedErr) {
			httpx.WriteTooManyRequests(w, time.Until(lockedErr.Until), "login temporarily locked")
			return
		}
		httpx.WriteAppError(w, r, h.logger, "login_failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteAppError(w, r, h.logger, "refresh_failed", err)
		return
	}

	resp, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		httpx.WriteAppError(w, r, h.logger, "refresh_failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteAppError(w, r, h.logger, "me_failed", ErrUnauthenticated)
		return
	}

	user, err := h.service.Me(r.Context(), claims.SubjectID)
	if err != nil {
		httpx.WriteAppError(w, r, h.logger, "me_failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, user)
}
