package oauth

import (
	"context"
	"sync"
	"time"

	"panicless-backend/internal/auth"
)

// memStore holds its mutex across the whole redemption, mirroring the row
// lock the Postgres repository takes.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	usernames map[int64]string
	codes     map[string]*AuthorizationCode
	tokens    map[string]AccessToken
	now       func() time.Time
	err       error
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		usernames: map[int64]string{42: "testuser"},
		codes:     make(map[string]*AuthorizationCode),
		tokens:    make(map[string]AccessToken),
		now:       now,
	}
}

func (s *memStore) CreateCode(_ context.Context, code AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.nextID++
	code.ID = s.nextID
	s.codes[code.Code] = &code
	return nil
}

func (s *memStore) RedeemCode(_ context.Context, clientID, code string, redeem RedeemFunc) (AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return AccessToken{}, s.err
	}
	record, ok := s.codes[code]
	if !ok || record.ClientID != clientID {
		return AccessToken{}, ErrCodeNotFound
	}

	snapshot := *record
	snapshot.Username = s.usernames[record.UserID]
	token, err := redeem(snapshot)
	if err != nil {
		return AccessToken{}, err
	}

	if record.UsedAt != nil {
		return AccessToken{}, ErrCodeUsed
	}
	usedAt := s.now()
	record.UsedAt = &usedAt
	s.tokens[token.Token] = token

	return token, nil
}

func (s *memStore) FindOpaqueToken(_ context.Context, token string) (auth.OpaqueToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok {
		return auth.OpaqueToken{}, auth.ErrOpaqueTokenNotFound
	}
	return auth.OpaqueToken{
		UserID:    record.UserID,
		Username:  s.usernames[record.UserID],
		ExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *memStore) code(code string) AuthorizationCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.codes[code]
}

// DeleteExpiredTokens uses the same predicate as the Postgres repository.
func (s *memStore) DeleteExpiredTokens(_ context.Context, before time.Time, _ int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for token, record := range s.tokens {
		if record.ExpiresAt.Before(before) {
			delete(s.tokens, token)
			deleted++
		}
	}
	return deleted, nil
}
