// Package connector stores users' third-party API keys, encrypted with the
// credential vault before they reach the database.
package connector

import (
	"context"
	"strings"
	"time"
)

// Cipher is the subset of the vault the service needs.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

type Service struct {
	store  Store
	cipher Cipher
	now    func() time.Time
}

func NewService(store Store, cipher Cipher) *Service {
	return &Service{
		store:  store,
		cipher: cipher,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Save encrypts apiToken and upserts it for (userID, provider). Saving over
// a disabled connector re-enables it.
func (s *Service) Save(ctx context.Context, userID int64, provider, apiToken string) (Connector, error) {
	p, err := ParseProvider(provider)
	if err != nil {
		return Connector{}, err
	}
	if strings.TrimSpace(apiToken) == "" {
		return Connector{}, ErrEmptyToken
	}

	encrypted, err := s.cipher.Encrypt(apiToken)
	if err != nil {
		return Connector{}, err
	}

	return s.store.Upsert(ctx, userID, p, encrypted)
}

func (s *Service) List(ctx context.Context, userID int64) ([]Connector, error) {
	return s.store.List(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID int64, provider string) (Connector, error) {
	p, err := ParseProvider(provider)
	if err != nil {
		return Connector{}, err
	}
	return s.store.Get(ctx, userID, p)
}

func (s *Service) Delete(ctx context.Context, userID int64, provider string) error {
	p, err := ParseProvider(provider)
	if err != nil {
		return err
	}
	return s.store.Deactivate(ctx, userID, p)
}

func (s *Service) Toggle(ctx context.Context, userID int64, provider string) (Connector, error) {
	p, err := ParseProvider(provider)
	if err != nil {
		return Connector{}, err
	}
	return s.store.Toggle(ctx, userID, p)
}

// Verify checks that the stored key still decrypts under the current vault
// key without exposing it.
func (s *Service) Verify(ctx context.Context, userID int64, provider string) (VerifyResponse, error) {
	_, connector, err := s.open(ctx, userID, provider)
	if err != nil {
		return VerifyResponse{}, err
	}

	return VerifyResponse{
		Provider:   connector.Provider,
		Valid:      true,
		LastUsedAt: connector.LastUsedAt,
	}, nil
}

// open decrypts the key of an active connector and stamps last_used_at. The
// plaintext must not be logged or returned to clients.
func (s *Service) open(ctx context.Context, userID int64, provider string) (string, Connector, error) {
	connector, err := s.Get(ctx, userID, provider)
	if err != nil {
		return "", Connector{}, err
	}
	if !connector.IsActive {
		return "", Connector{}, ErrInactive
	}

	plaintext, err := s.cipher.Decrypt(connector.EncryptedToken)
	if err != nil {
		return "", Connector{}, err
	}

	usedAt := s.now()
	if err := s.store.TouchLastUsed(ctx, userID, connector.Provider, usedAt); err != nil {
		return "", Connector{}, err
	}
	connector.LastUsedAt = &usedAt

	return plaintext, connector, nil
}
