package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

type tokenClaims struct {
	Username  string    `json:"username"`
	TokenType TokenKind `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access and refresh tokens with the
// deployment-wide secret.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}

	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	if now != nil {
		i.now = now
	}
	return i
}

func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.accessTTL
}

func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

func (i *TokenIssuer) IssueAccess(subjectID int64, username string) (string, Claims, error) {
	return i.Issue(subjectID, username, TokenKindAccess, i.accessTTL)
}

func (i *TokenIssuer) IssueRefresh(subjectID int64, username string) (string, Claims, error) {
	return i.Issue(subjectID, username, TokenKindRefresh, i.refreshTTL)
}

func (i *TokenIssuer) Issue(subjectID int64, username string, kind TokenKind, ttl time.Duration) (string, Claims, error) {
	if kind != TokenKindAccess && kind != TokenKindRefresh {
		return "", Claims{}, fmt.Errorf("unknown token kind %q", kind)
	}
	// Claims are second-granular; anything shorter would yield exp == iat.
	if ttl < time.Second {
		return "", Claims{}, fmt.Errorf("token ttl must be at least one second, got %s", ttl)
	}

	now := i.now().Truncate(time.Second)
	claims := tokenClaims{
		Username:  username,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, Claims{
		SubjectID: subjectID,
		Username:  username,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		Kind:      kind,
	}, nil
}

// Verify checks structure, signature and expiry in one pass. Every failure
// collapses into ErrInvalidToken.
func (i *TokenIssuer) Verify(token string) (Claims, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	subjectID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.TokenType != TokenKindAccess && claims.TokenType != TokenKindRefresh {
		return Claims{}, ErrInvalidToken
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		SubjectID: subjectID,
		Username:  claims.Username,
		IssuedAt:  claims.IssuedAt.Unix(),
		ExpiresAt: claims.ExpiresAt.Unix(),
		Kind:      claims.TokenType,
	}, nil
}

// VerifyKind is Verify plus the kind check: a refresh token presented where
// an access token is required (or the reverse) fails with ErrWrongTokenKind.
func (i *TokenIssuer) VerifyKind(token string, kind TokenKind) (Claims, error) {
	claims, err := i.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	if claims.Kind != kind {
		return Claims{}, ErrWrongTokenKind
	}
	return claims, nil
}
