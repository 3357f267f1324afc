package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"panicless-backend/internal/httpx"
	"panicless-backend/internal/observability"
)

// OpaqueTokenStore resolves an OAuth access token by exact match. A missing
// token is reported as ErrOpaqueTokenNotFound.
type OpaqueTokenStore interface {
	FindOpaqueToken(ctx context.Context, token string) (OpaqueToken, error)
}

// Verdict is the outcome of one verification path. Claims is only
// meaningful when Valid is true.
type Verdict struct {
	Claims Claims
	Valid  bool
}

func accepted(claims Claims) Verdict {
	return Verdict{Claims: claims, Valid: true}
}

// Gate authenticates bearer credentials on protected routes. Signed tokens
// are tried first; anything that fails there falls through to the opaque
// OAuth token lookup.
type Gate struct {
	issuer  *TokenIssuer
	store   OpaqueTokenStore
	cache   TokenCache
	metrics *Metrics
	logger  *observability.Logger
	now     func() time.Time
}

func NewGate(issuer *TokenIssuer, store OpaqueTokenStore, logger *observability.Logger) *Gate {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Gate{
		issuer: issuer,
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (g *Gate) WithCache(cache TokenCache) *Gate {
	g.cache = cache
	return g
}

func (g *Gate) WithMetrics(metrics *Metrics) *Gate {
	g.metrics = metrics
	return g
}

func (g *Gate) WithClock(now func() time.Time) *Gate {
	if now != nil {
		g.now = now
	}
	return g
}

// VerifySigned accepts only access-kind signed tokens.
func (g *Gate) VerifySigned(token string) Verdict {
	claims, err := g.issuer.VerifyKind(token, TokenKindAccess)
	if err != nil {
		return Verdict{}
	}
	return accepted(claims)
}

// VerifyOpaque looks the token up and synthesizes access claims for it. An
// unknown or expired token is an invalid verdict; err is only set when the
// store itself failed.
func (g *Gate) VerifyOpaque(ctx context.Context, token string) (Verdict, error) {
	if token == "" {
		return Verdict{}, nil
	}

	now := g.now()

	if g.cache != nil {
		record, found, err := g.cache.Get(ctx, token)
		switch {
		case err != nil:
			g.logger.Warn("opaque_token_cache_get_failed", map[string]any{"error": err})
		case found:
			g.metrics.recordCache(true)
			return opaqueVerdict(record, now), nil
		default:
			g.metrics.recordCache(false)
		}
	}

	record, err := g.store.FindOpaqueToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrOpaqueTokenNotFound) {
			return Verdict{}, nil
		}
		return Verdict{}, err
	}

	verdict := opaqueVerdict(record, now)
	if verdict.Valid && g.cache != nil {
		if err := g.cache.Set(ctx, token, record, 0); err != nil {
			g.logger.Warn("opaque_token_cache_set_failed", map[string]any{"error": err})
		}
	}

	return verdict, nil
}

func opaqueVerdict(record OpaqueToken, now time.Time) Verdict {
	if !now.Before(record.ExpiresAt) {
		return Verdict{}
	}

	claims := Claims{
		SubjectID: record.UserID,
		Username:  record.Username,
		IssuedAt:  now.Unix(),
		ExpiresAt: record.ExpiresAt.Unix(),
		Kind:      TokenKindAccess,
	}
	if claims.ExpiresAt <= claims.IssuedAt {
		return Verdict{}
	}

	return accepted(claims)
}

// Authenticate runs the signed path then the opaque path and returns the
// first accepted claims. Every failure, including a store error, is
// reported as ErrUnauthenticated.
func (g *Gate) Authenticate(ctx context.Context, token string) (Claims, error) {
	if token == "" {
		g.metrics.recordGate(familyNone, resultRejected)
		return Claims{}, ErrMissingBearer
	}

	if verdict := g.VerifySigned(token); verdict.Valid {
		g.metrics.recordGate(familySigned, resultAccepted)
		return verdict.Claims, nil
	}

	verdict, err := g.VerifyOpaque(ctx, token)
	if err != nil {
		g.metrics.recordGate(familyOpaque, resultError)
		g.logger.Error("opaque_token_lookup_failed", map[string]any{
			"error":      err,
			"request_id": observability.RequestID(ctx),
		})
		observability.CaptureError(ctx, err)
		return Claims{}, ErrUnauthenticated
	}
	if verdict.Valid {
		g.metrics.recordGate(familyOpaque, resultAccepted)
		return verdict.Claims, nil
	}

	g.metrics.recordGate(familyNone, resultRejected)
	return Claims{}, ErrUnauthenticated
}

// Middleware rejects the request with 401 unless the bearer credential
// authenticates, and publishes the claims on the request context otherwise.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := httpx.BearerToken(r)
		if !ok {
			g.metrics.recordGate(familyNone, resultRejected)
			httpx.WriteAppError(w, r, g.logger, "auth_gate_failed", ErrMissingBearer)
			return
		}

		claims, err := g.Authenticate(r.Context(), token)
		if err != nil {
			httpx.WriteAppError(w, r, g.logger, "auth_gate_failed", err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

type claimsKey struct{}

func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	return claims, ok
}
