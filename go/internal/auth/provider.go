package auth

import (
	"context"
	"sync"
)

// Provider hands out bearer credentials. Token must return a credential that
// is not known to be expired; ForceRefresh always obtains a new one.
type Provider interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// MemoryStore keeps the current bearer token in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (s *MemoryStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemoryStore) Clear() {
	s.Set("")
}

// Static is a Provider over a fixed token with no refresh capability.
type Static string

func (s Static) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}

func (s Static) ForceRefresh(ctx context.Context) (string, error) {
	return s.Token(ctx)
}
