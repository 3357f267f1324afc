package oauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"panicless-backend/internal/auth"
)

// RedeemFunc validates a locked code row and builds the token to persist.
// Returning an error aborts the redemption and leaves the code untouched.
type RedeemFunc func(code AuthorizationCode) (AccessToken, error)

// Store persists codes and opaque tokens. RedeemCode must run redeem, mark
// the code used and insert the token as one atomic unit: of two concurrent
// redemptions of the same code at most one may succeed.
type Store interface {
	CreateCode(ctx context.Context, code AuthorizationCode) error
	RedeemCode(ctx context.Context, clientID, code string, redeem RedeemFunc) (AccessToken, error)
	FindOpaqueToken(ctx context.Context, token string) (auth.OpaqueToken, error)
}

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repository) CreateCode(ctx context.Context, code AuthorizationCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_codes (code, client_id, user_id, redirect_uri, scope, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, code.Code, code.ClientID, code.UserID, code.RedirectURI, code.Scope, code.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert oauth code: %w", err)
	}

	return nil
}

// RedeemCode locks the code row for the length of the transaction, so a
// concurrent redemption waits and then observes used_at. The conditional
// update re-checks used_at independently of the row lock.
func (r *Repository) RedeemCode(ctx context.Context, clientID, code string, redeem RedeemFunc) (AccessToken, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return AccessToken{}, fmt.Errorf("begin redeem tx: %w", err)
	}
	defer tx.Rollback()

	var record AuthorizationCode
	var scope sql.NullString
	var usedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT c.id, c.code, c.client_id, c.user_id, u.username, c.redirect_uri, c.scope, c.expires_at, c.used_at, c.created_at
		FROM oauth_codes c
		JOIN users u ON u.id = c.user_id
		WHERE c.code = $1 AND c.client_id = $2
		FOR UPDATE OF c
	`, code, clientID).Scan(
		&record.ID, &record.Code, &record.ClientID, &record.UserID, &record.Username,
		&record.RedirectURI, &scope, &record.ExpiresAt, &usedAt, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AccessToken{}, ErrCodeNotFound
		}
		return AccessToken{}, fmt.Errorf("lock oauth code: %w", err)
	}
	if scope.Valid {
		value := scope.String
		record.Scope = &value
	}
	if usedAt.Valid {
		value := usedAt.Time.UTC()
		record.UsedAt = &value
	}
	record.ExpiresAt = record.ExpiresAt.UTC()

	token, err := redeem(record)
	if err != nil {
		return AccessToken{}, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE oauth_codes
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`, record.ID, r.now())
	if err != nil {
		return AccessToken{}, fmt.Errorf("mark oauth code used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return AccessToken{}, fmt.Errorf("oauth code rows affected: %w", err)
	}
	if affected == 0 {
		return AccessToken{}, ErrCodeUsed
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO oauth_tokens (token, client_id, user_id, scope, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, token.Token, token.ClientID, token.UserID, token.Scope, token.ExpiresAt.UTC())
	if err != nil {
		return AccessToken{}, fmt.Errorf("insert oauth token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return AccessToken{}, fmt.Errorf("commit redeem tx: %w", err)
	}

	return token, nil
}

func (r *Repository) FindOpaqueToken(ctx context.Context, token string) (auth.OpaqueToken, error) {
	var record auth.OpaqueToken
	err := r.db.QueryRowContext(ctx, `
		SELECT t.user_id, u.username, t.expires_at
		FROM oauth_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token = $1
	`, token).Scan(&record.UserID, &record.Username, &record.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.OpaqueToken{}, auth.ErrOpaqueTokenNotFound
		}
		return auth.OpaqueToken{}, fmt.Errorf("query oauth token: %w", err)
	}
	record.ExpiresAt = record.ExpiresAt.UTC()

	return record, nil
}

// DeleteExpiredTokens removes one batch of opaque tokens past their expiry.
// Authorization codes are never deleted: an expired code must keep failing
// as expired rather than as unknown.
func (r *Repository) DeleteExpiredTokens(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH expired AS (
			SELECT token
			FROM oauth_tokens
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM oauth_tokens t
		USING expired
		WHERE t.token = expired.token
	`, before, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired oauth tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("oauth tokens rows affected: %w", err)
	}

	return affected, nil
}
