//go:build integration

package oauth

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panicless-backend/internal/auth"
	"panicless-backend/internal/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("IT_DATABASE_URL")
	if dsn == "" {
		t.Skip("IT_DATABASE_URL not set")
	}

	database, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.RunMigrations(database))
	return database
}

func createTestUser(t *testing.T, database *sql.DB) auth.User {
	t.Helper()

	suffix := uuid.NewString()[:8]
	user, err := auth.NewRepository(database).CreateUser(context.Background(), auth.NewUser{
		Username:     "it_" + suffix,
		Email:        "it_" + suffix + "@example.com",
		PasswordHash: "not-a-real-hash",
	})
	require.NoError(t, err)
	return user
}

func TestRepository_RedeemCodeOnce(t *testing.T) {
	database := openTestDB(t)
	repo := NewRepository(database)
	user := createTestUser(t, database)
	ctx := context.Background()

	code, err := GenerateCode()
	require.NoError(t, err)
	require.NoError(t, repo.CreateCode(ctx, AuthorizationCode{
		Code:        code,
		ClientID:    "it-client",
		UserID:      user.ID,
		RedirectURI: "https://client.example.com/cb",
		ExpiresAt:   time.Now().UTC().Add(CodeTTL),
	}))

	_, err = repo.RedeemCode(ctx, "other-client", code, func(AuthorizationCode) (AccessToken, error) {
		t.Fatal("redeem must not run for another client")
		return AccessToken{}, nil
	})
	require.ErrorIs(t, err, ErrCodeNotFound)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RedeemCode(ctx, "it-client", code, func(c AuthorizationCode) (AccessToken, error) {
				if c.UsedAt != nil {
					return AccessToken{}, ErrCodeUsed
				}
				token, err := GenerateToken()
				if err != nil {
					return AccessToken{}, err
				}
				return AccessToken{
					Token:     token,
					ClientID:  c.ClientID,
					UserID:    c.UserID,
					Scope:     DefaultScope,
					ExpiresAt: time.Now().UTC().Add(TokenTTL),
				}, nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, errors.Is(err, ErrCodeUsed), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)

	var tokens int
	require.NoError(t, database.QueryRowContext(ctx, `SELECT COUNT(*) FROM oauth_tokens WHERE user_id = $1`, user.ID).Scan(&tokens))
	assert.Equal(t, 1, tokens)
}

func TestRepository_FindOpaqueToken(t *testing.T) {
	database := openTestDB(t)
	repo := NewRepository(database)
	user := createTestUser(t, database)
	ctx := context.Background()

	_, err := repo.FindOpaqueToken(ctx, "missing")
	require.ErrorIs(t, err, auth.ErrOpaqueTokenNotFound)

	token, err := GenerateToken()
	require.NoError(t, err)
	expiresAt := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	_, err = database.ExecContext(ctx, `
		INSERT INTO oauth_tokens (token, client_id, user_id, scope, expires_at)
		VALUES ($1, 'it-client', $2, 'all', $3)
	`, token, user.ID, expiresAt)
	require.NoError(t, err)

	record, err := repo.FindOpaqueToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, record.UserID)
	assert.Equal(t, user.Username, record.Username)
	assert.True(t, expiresAt.Equal(record.ExpiresAt))

	deleted, err := repo.DeleteExpiredTokens(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	_, err = repo.FindOpaqueToken(ctx, token)
	require.ErrorIs(t, err, auth.ErrOpaqueTokenNotFound)
}

func TestRepository_TokenCleanupKeepsExpiredCodes(t *testing.T) {
	database := openTestDB(t)
	repo := NewRepository(database)
	user := createTestUser(t, database)
	ctx := context.Background()

	code, err := GenerateCode()
	require.NoError(t, err)
	require.NoError(t, repo.CreateCode(ctx, AuthorizationCode{
		Code:        code,
		ClientID:    "it-client",
		UserID:      user.ID,
		RedirectURI: "https://client.example.com/cb",
		ExpiresAt:   time.Now().UTC().Add(-time.Hour),
	}))

	_, err = repo.DeleteExpiredTokens(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)

	_, err = repo.RedeemCode(ctx, "it-client", code, func(c AuthorizationCode) (AccessToken, error) {
		require.True(t, c.ExpiresAt.Before(time.Now().UTC()))
		return AccessToken{}, ErrCodeExpired
	})
	require.ErrorIs(t, err, ErrCodeExpired)
}
