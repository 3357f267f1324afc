package connector

import (
	"net/http"

	"panicless-backend/internal/auth"
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

type saveRequest struct {
	Provider string `json:"provider"`
	APIToken string `json:"api_token"`
}

// Register mounts the connector routes behind the auth gate.
func (h *Handler) Register(mux *http.ServeMux, gate func(http.Handler) http.Handler) {
	mux.Handle("POST /api/connectors", gate(http.HandlerFunc(h.Save)))
	mux.Handle("GET /api/connectors", gate(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/connectors/{provider}", gate(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /api/connectors/{provider}", gate(http.HandlerFunc(h.Delete)))
	mux.Handle("PATCH /api/connectors/{provider}/toggle", gate(http.HandlerFunc(h.Toggle)))
	mux.Handle("POST /api/connectors/{provider}/verify", gate(http.HandlerFunc(h.Verify)))
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteAppError(w, r, h.logger, "connector_save_failed", auth.ErrUnauthenticated)
		return
	}

	var body saveRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteAppError(w, r, h.logger, "connector_save_failed", err)
		return
	}

	connector, err := h.service.Save(r.Context(), claims.SubjectID, body.Provider, body.APIToken)
	if err != nil {
		httpx.WriteAppError(w, r, h.logger, "connector_save_failed", err)
		return
	}

	h.logger.Info("connector_saved", map[string]any{
		"user_id":  claims.SubjectID,
		"provider": connector.Provider,
	})
	httpx.WriteJSON(w, http.StatusCreated, connector.Response())
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteAppError(w, r, h.logger, "connector_list_failed", auth.ErrUnauthenticated)
		return
	}

	connectors, err := h.service.List(r.Context(), claims.SubjectID)
	if err != nil {
		httpx.WriteAppError(w, r, h.logger, "connector_list_failed", err)
		return
	}

	out := make([]Response, 0, len(connectors))
	for _, c := range connectors {
		out = append(out, c.Response())
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteAppError(w, r, h.logger, "connector_get_failed", auth.ErrUnauthenticated)
		return
	}

	connector, err := h.service.Get(r.Context(), claims.SubjectID, r.PathValue("provider"))
	if err != nil {
		httpx.WriteAppError(w, r, h.logger, "connector_get_failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, connector.Response())
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteAppError(w, r, h.logger, "connector_delete_failed", auth.ErrUnauthenticated)
		return
	}

	provider := r.PathValue("provider")
	if err := h.service.Delete(r.Context(), claims.SubjectID, provider); err != nil {
		httpx.WriteAppError(w, r, h.logger, "connector_delete_failed", err)
		return
	}

	h.logger.Info("connector_disabled", map[string]any{
		"user_id":  claims.SubjectID,
		"provider": provider,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteAppError(w, r, h.logger, "connector_toggle_failed", auth.ErrUnauthenticated)
		return
	}

	connector, err := h.service.Toggle(r.Context(), claims.SubjectID, r.PathValue("provider"))
	if err != nil {
		httpx.WriteAppError(w, r, h.logger, "connector_toggle_failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, connector.Response())
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteAppError(w, r, h.logger, "connector_verify_failed", auth.ErrUnauthenticated)
		return
	}

	resp, err := h.service.Verify(r.Context(), claims.SubjectID, r.PathValue("provider"))
	if err != nil {
		httpx.WriteAppError(w, r, h.logger, "connector_verify_failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}
