// Package oauth implements the authorization-code grant for the single
// registered client, and the discovery documents that describe it.
package oauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"panicless-backend/internal/auth"
	"panicless-backend/internal/observability"
)

type Service struct {
	store    Store
	clients  ClientRegistry
	issuer   *auth.TokenIssuer
	metrics  *Metrics
	logger   *observability.Logger
	now      func() time.Time
	newCode  func() (string, error)
	newToken func() (string, error)
}

func NewService(store Store, clients ClientRegistry, issuer *auth.TokenIssuer, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Service{
		store:    store,
		clients:  clients,
		issuer:   issuer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newCode:  GenerateCode,
		newToken: GenerateToken,
	}
}

func (s *Service) WithMetrics(metrics *Metrics) *Service {
	s.metrics = metrics
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Authorize issues a code bound to the authenticated user. Only client_id is
// checked here; the secret is presented at exchange time.
func (s *Service) Authorize(ctx context.Context, user auth.Claims, req AuthorizeRequest) (AuthorizeResponse, error) {
	resp, err := s.authorize(ctx, user, req)
	s.metrics.recordAuthorize(err)
	return resp, err
}

func (s *Service) authorize(ctx context.Context, user auth.Claims, req AuthorizeRequest) (AuthorizeResponse, error) {
	clientID := strings.TrimSpace(req.ClientID)
	if _, ok := s.clients.Lookup(clientID); !ok {
		s.logger.Warn("oauth_authorize_invalid_client", map[string]any{"user_id": user.SubjectID})
		return AuthorizeResponse{}, ErrInvalidClient
	}
	if req.ResponseType != ResponseTypeCode {
		return AuthorizeResponse{}, ErrUnsupportedResponseType
	}
	if strings.TrimSpace(req.RedirectURI) == "" {
		return AuthorizeResponse{}, ErrMissingRedirectURI
	}

	code, err := s.newCode()
	if err != nil {
		return AuthorizeResponse{}, fmt.Errorf("generate authorization code: %w", err)
	}

	now := s.now()
	err = s.store.CreateCode(ctx, AuthorizationCode{
		Code:        code,
		ClientID:    clientID,
		UserID:      user.SubjectID,
		RedirectURI: req.RedirectURI,
		Scope:       nonEmpty(req.Scope),
		ExpiresAt:   now.Add(CodeTTL),
		CreatedAt:   now,
	})
	if err != nil {
		return AuthorizeResponse{}, err
	}

	s.logger.Info("oauth_code_issued", map[string]any{
		"user_id":   user.SubjectID,
		"client_id": clientID,
	})

	return AuthorizeResponse{Code: code, State: req.State}, nil
}

// Exchange redeems a code for an opaque token plus a signed access token.
// Checks run in a fixed order: client credentials, grant type, code lookup,
// expiry, prior use, redirect URI.
func (s *Service) Exchange(ctx context.Context, req TokenRequest) (TokenResponse, error) {
	resp, err := s.exchange(ctx, req)
	s.metrics.recordExchange(err)
	if err != nil {
		s.logger.Warn("oauth_exchange_rejected", map[string]any{
			"client_id": req.ClientID,
			"result":    exchangeResult(err),
		})
	}
	return resp, err
}

func (s *Service) exchange(ctx context.Context, req TokenRequest) (TokenResponse, error) {
	client, err := authenticateClient(s.clients, strings.TrimSpace(req.ClientID), req.ClientSecret)
	if err != nil {
		return TokenResponse{}, err
	}
	if req.GrantType != GrantTypeAuthorizationCode {
		return TokenResponse{}, ErrUnsupportedGrant
	}

	var signed string
	token, err := s.store.RedeemCode(ctx, client.ID, req.Code, func(code AuthorizationCode) (AccessToken, error) {
		now := s.now()
		if !now.Before(code.ExpiresAt) {
			return AccessToken{}, ErrCodeExpired
		}
		if code.UsedAt != nil {
			return AccessToken{}, ErrCodeUsed
		}
		if code.RedirectURI != req.RedirectURI {
			return AccessToken{}, ErrRedirectMismatch
		}

		opaque, err := s.newToken()
		if err != nil {
			return AccessToken{}, fmt.Errorf("generate access token: %w", err)
		}

		signed, _, err = s.issuer.Issue(code.UserID, code.Username, auth.TokenKindAccess, TokenTTL)
		if err != nil {
			return AccessToken{}, err
		}

		scope := DefaultScope
		if code.Scope != nil && *code.Scope != "" {
			scope = *code.Scope
		}

		return AccessToken{
			Token:     opaque,
			ClientID:  client.ID,
			UserID:    code.UserID,
			Scope:     scope,
			ExpiresAt: now.Add(TokenTTL),
		}, nil
	})
	if err != nil {
		return TokenResponse{}, err
	}

	s.logger.Info("oauth_token_issued", map[string]any{
		"user_id":   token.UserID,
		"client_id": client.ID,
	})

	return TokenResponse{
		AccessToken: token.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(TokenTTL.Seconds()),
		Scope:       token.Scope,
		JWTToken:    signed,
	}, nil
}

func nonEmpty(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
