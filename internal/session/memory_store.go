package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"letters/api/internal/store"
)

type expiring[T any] struct {
	value     T
	expiresAt time.Time
}

// MemoryStore is a process-local store for single-instance development runs.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	creds   map[string]expiring[store.Credentials]
	refresh map[string]expiring[string]
	drafts  map[string]store.Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		creds:   map[string]expiring[store.Credentials]{},
		refresh: map[string]expiring[string]{},
		drafts:  map[string]store.Draft{},
	}
}

func (s *MemoryStore) SaveCredentials(_ context.Context, creds store.Credentials, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds.CreatedAt = s.now()
	s.creds[creds.SessionID] = expiring[store.Credentials]{value: creds, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) LookupCredentials(_ context.Context, sessionID string) (store.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.creds[sessionID]
	if !ok || !s.now().Before(entry.expiresAt) {
		return store.Credentials{}, fmt.Errorf("lookup credentials: %w", store.ErrNotFound)
	}
	return entry.value, nil
}

func (s *MemoryStore) RevokeCredentials(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, sessionID)
	return nil
}

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash, sessionID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenHash] = expiring[string]{value: sessionID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.refresh[tokenHash]
	if !ok || !s.now().Before(entry.expiresAt) {
		return "", fmt.Errorf("lookup refresh token: %w", store.ErrNotFound)
	}
	return entry.value, nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, tokenHash)
	return nil
}

func (s *MemoryStore) SaveDraft(_ context.Context, owner string, draft store.Draft) (store.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft.SavedAt = s.now().UTC()
	s.drafts[owner] = draft
	return draft, nil
}

func (s *MemoryStore) LoadDraft(_ context.Context, owner string) (store.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, ok := s.drafts[owner]
	if !ok {
		return store.Draft{}, fmt.Errorf("load draft: %w", store.ErrNotFound)
	}
	return draft, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
