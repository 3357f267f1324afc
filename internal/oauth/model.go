package oauth

import "time"

const (
	ResponseTypeCode           = "code"
	GrantTypeAuthorizationCode = "authorization_code"
	DefaultScope               = "all"

	CodeTTL  = 10 * time.Minute
	TokenTTL = 24 * time.Hour
)

// AuthorizationCode is a one-time grant. UsedAt is nil until redemption and
// never cleared afterwards.
type AuthorizationCode struct {
	ID          int64
	Code        string
	ClientID    string
	UserID      int64
	Username    string
	RedirectURI string
	Scope       *string
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

type AccessToken struct {
	Token     string
	ClientID  string
	UserID    int64
	Scope     string
	ExpiresAt time.Time
}

type AuthorizeRequest struct {
	ClientID     string  `json:"client_id"`
	RedirectURI  string  `json:"redirect_uri"`
	ResponseType string  `json:"response_type"`
	Scope        *string `json:"scope,omitempty"`
	State        *string `json:"state,omitempty"`
}

type AuthorizeResponse struct {
	Code  string  `json:"code"`
	State *string `json:"state"`
}

type TokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	GrantType    string `json:"grant_type"`
	RedirectURI  string `json:"redirect_uri"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
	JWTToken    string `json:"jwt_token"`
}
