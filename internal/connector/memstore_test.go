package connector

import (
	"context"
	"sync"
	"time"
)

type storeKey struct {
	userID   int64
	provider Provider
}

type memStore struct {
	mu     sync.Mutex
	nextID int64
	now    func() time.Time
	rows   map[storeKey]Connector
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{now: now, rows: make(map[storeKey]Connector)}
}

func (s *memStore) Upsert(_ context.Context, userID int64, provider Provider, encryptedToken string) (Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey{userID, provider}
	now := s.now()
	row, ok := s.rows[key]
	if !ok {
		s.nextID++
		row = Connector{ID: s.nextID, UserID: userID, Provider: provider, CreatedAt: now}
	}
	row.EncryptedToken = encryptedToken
	row.IsActive = true
	row.UpdatedAt = now
	s.rows[key] = row
	return row, nil
}

func (s *memStore) List(_ context.Context, userID int64) ([]Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Connector, 0)
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID > out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (s *memStore) Get(_ context.Context, userID int64, provider Provider) (Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[storeKey{userID, provider}]
	if !ok {
		return Connector{}, ErrNotFound
	}
	return row, nil
}

func (s *memStore) Deactivate(_ context.Context, userID int64, provider Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey{userID, provider}
	row, ok := s.rows[key]
	if !ok {
		return ErrNotFound
	}
	row.IsActive = false
	row.UpdatedAt = s.now()
	s.rows[key] = row
	return nil
}

func (s *memStore) Toggle(_ context.Context, userID int64, provider Provider) (Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey{userID, provider}
	row, ok := s.rows[key]
	if !ok {
		return Connector{}, ErrNotFound
	}
	row.IsActive = !row.IsActive
	row.UpdatedAt = s.now()
	s.rows[key] = row
	return row, nil
}

func (s *memStore) TouchLastUsed(_ context.Context, userID int64, provider Provider, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey{userID, provider}
	row, ok := s.rows[key]
	if !ok {
		return ErrNotFound
	}
	row.LastUsedAt = &at
	s.rows[key] = row
	return nil
}
