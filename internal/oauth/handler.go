package oauth

import (
	"net/http"
	"net/url"
	"strings"

	"panicless-backend/internal/auth"
	"panicless-backend/internal/httpx"
	"panicless-backend/internal/observability"
)

type Handler struct {
	service       *Service
	logger        *observability.Logger
	publicBaseURL string
}

func NewHandler(service *Service, logger *observability.Logger, publicBaseURL string) *Handler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handler{
		service:       service,
		logger:        logger,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}
}

// Authorize must sit behind the auth gate. Parameters come from a JSON body
// or from the query string and form.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteAppError(w, r, h.logger, "oauth_authorize_failed", auth.ErrUnauthenticated)
		return
	}

	var req AuthorizeRequest
	if httpx.IsJSONRequest(r) {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.WriteAppError(w, r, h.logger, "oauth_authorize_failed", err)
			return
		}
	} else {
		values, err := parseForm(w, r)
		if err != nil {
			httpx.WriteAppError(w, r, h.logger, "oauth_authorize_failed", err)
			return
		}
		req = AuthorizeRequest{
			ClientID:     formValue(values, "client_id"),
			RedirectURI:  values.Get("redirect_uri"),
			ResponseType: formValue(values, "response_type"),
			Scope:        optional(values, "scope"),
			State:        optional(values, "state"),
		}
	}

	resp, err := h.service.Authorize(r.Context(), claims, req)
	if err != nil {
		httpx.WriteAppError(w, r, h.logger, "oauth_authorize_failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Token accepts JSON or form-encoded client_secret_post requests.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if httpx.IsJSONRequest(r) {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.WriteAppError(w, r, h.logger, "oauth_token_failed", err)
			return
		}
	} else {
		values, err := parseForm(w, r)
		if err != nil {
			httpx.WriteAppError(w, r, h.logger, "oauth_token_failed", err)
			return
		}
		req = TokenRequest{
			ClientID:     formValue(values, "client_id"),
			ClientSecret: formValue(values, "client_secret"),
			Code:         formValue(values, "code"),
			GrantType:    formValue(values, "grant_type"),
			RedirectURI:  values.Get("redirect_uri"),
		}
	}

	resp, err := h.service.Exchange(r.Context(), req)
	if err != nil {
		httpx.WriteAppError(w, r, h.logger, "oauth_token_failed", Public(err))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type authorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
}

type protectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ScopesSupported        []string `json:"scopes_supported"`
}

func (h *Handler) AuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	issuer := h.issuer(r)
	httpx.WriteJSON(w, http.StatusOK, authorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/oauth/authorize",
		TokenEndpoint:                     issuer + "/oauth/token",
		ResponseTypesSupported:            []string{ResponseTypeCode},
		GrantTypesSupported:               []string{GrantTypeAuthorizationCode},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
		ScopesSupported:                   []string{DefaultScope},
	})
}

func (h *Handler) ProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	issuer := h.issuer(r)
	httpx.WriteJSON(w, http.StatusOK, protectedResourceMetadata{
		Resource:               issuer,
		AuthorizationServers:   []string{issuer},
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        []string{DefaultScope},
	})
}

func (h *Handler) issuer(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0]); forwarded == "http" || forwarded == "https" {
		scheme = forwarded
	}

	return scheme + "://" + r.Host
}

func parseForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, httpx.MaxJSONBodyBytes)
	if err := r.ParseForm(); err != nil {
		return nil, ErrInvalidRequest
	}
	return r.Form, nil
}

// formValue trims surrounding whitespace. redirect_uri is read with
// values.Get instead so it is compared exactly as sent, like the JSON path.
func formValue(values url.Values, key string) string {
	return strings.TrimSpace(values.Get(key))
}

func optional(values url.Values, key string) *string {
	if !values.Has(key) {
		return nil
	}
	value := formValue(values, key)
	return &value
}
