package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panicless-backend/internal/apperr"
	"panicless-backend/internal/vault"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type serviceFixture struct {
	service *Service
	store   *memStore
	vault   *vault.Vault
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	key, err := vault.GenerateKey()
	require.NoError(t, err)
	v, err := vault.New(key)
	require.NoError(t, err)

	now := func() time.Time { return testNow }
	store := newMemStore(now)
	service := NewService(store, v)
	service.now = now

	return &serviceFixture{service: service, store: store, vault: v}
}

func TestParseProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{in: "anthropic", want: ProviderAnthropic},
		{in: "Gemini", want: ProviderGemini},
		{in: " chatgpt ", want: ProviderChatGPT},
		{in: "openai", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownProvider)
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_SaveEncryptsToken(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	saved, err := f.service.Save(ctx, 1, "anthropic", "sk-ant-secret")
	require.NoError(t, err)
	assert.True(t, saved.IsActive)
	assert.NotContains(t, saved.EncryptedToken, "sk-ant-secret")

	plaintext, err := f.vault.Decrypt(saved.EncryptedToken)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-secret", plaintext)
}

func TestService_SaveValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider string
		token    string
		wantErr  error
	}{
		{name: "unknown provider", provider: "openai", token: "x", wantErr: ErrUnknownProvider},
		{name: "empty token", provider: "gemini", token: "", wantErr: ErrEmptyToken},
		{name: "blank token", provider: "gemini", token: "   ", wantErr: ErrEmptyToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newServiceFixture(t)
			_, err := f.service.Save(context.Background(), 1, tt.provider, tt.token)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_SaveReplacesAndReactivates(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.service.Save(ctx, 1, "gemini", "old-key")
	require.NoError(t, err)
	require.NoError(t, f.service.Delete(ctx, 1, "gemini"))

	second, err := f.service.Save(ctx, 1, "gemini", "new-key")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.IsActive)

	secret, _, err := f.service.open(ctx, 1, "gemini")
	require.NoError(t, err)
	assert.Equal(t, "new-key", secret)
}

func TestService_ScopedToUser(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Save(ctx, 1, "chatgpt", "user-one-key")
	require.NoError(t, err)

	_, err = f.service.Get(ctx, 2, "chatgpt")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, f.service.Delete(ctx, 2, "chatgpt"), ErrNotFound)

	list, err := f.service.List(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_ToggleAndOpen(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Save(ctx, 1, "anthropic", "sk-ant")
	require.NoError(t, err)

	toggled, err := f.service.Toggle(ctx, 1, "anthropic")
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	_, err = f.service.Verify(ctx, 1, "anthropic")
	require.ErrorIs(t, err, ErrInactive)

	toggled, err = f.service.Toggle(ctx, 1, "anthropic")
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)

	secret, _, err := f.service.open(ctx, 1, "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", secret)

	stored, err := f.service.Get(ctx, 1, "anthropic")
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)
	assert.True(t, testNow.Equal(*stored.LastUsedAt))
}

func TestService_VerifyDetectsTamperedBlob(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Save(ctx, 1, "gemini", "g-key")
	require.NoError(t, err)

	resp, err := f.service.Verify(ctx, 1, "gemini")
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, ProviderGemini, resp.Provider)
	require.NotNil(t, resp.LastUsedAt)

	_, err = f.store.Upsert(ctx, 1, ProviderGemini, "bm90LWEtdmFsaWQtYmxvYg==")
	require.NoError(t, err)

	_, err = f.service.Verify(ctx, 1, "gemini")
	require.ErrorIs(t, err, vault.ErrDecrypt)
}
