package auth

import (
	"context"
	"sync"
)

// InMemorySessionStore keeps refresh sessions in process memory, indexed by
// token and by member.
type InMemorySessionStore struct {
	mu     sync.Mutex
	byKey  map[string]Session
	byUser map[string]map[string]struct{}
}

// NewInMemorySessionStore returns an empty store, mainly for tests and local runs.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		byKey:  make(map[string]Session),
		byUser: make(map[string]map[string]struct{}),
	}
}

func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byKey[session.RefreshToken]; ok && prev.UserID != session.UserID {
		s.dropLocked(session.RefreshToken)
	}
	s.byKey[session.RefreshToken] = session
	tokens, ok := s.byUser[session.UserID]
	if !ok {
		tokens = make(map[string]struct{})
		s.byUser[session.UserID] = tokens
	}
	tokens[session.RefreshToken] = struct{}{}
	return nil
}

func (s *InMemorySessionStore) Find(_ context.Context, refreshToken string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byKey[refreshToken]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[refreshToken]; !ok {
		return ErrSessionNotFound
	}
	s.dropLocked(refreshToken)
	return nil
}

// DeleteForUser removes every session belonging to userID.
func (s *InMemorySessionStore) DeleteForUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token := range s.byUser[userID] {
		s.dropLocked(token)
		n++
	}
	return n, nil
}

// Has reports whether a refresh token is stored.
func (s *InMemorySessionStore) Has(refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byKey[refreshToken]
	return ok
}

func (s *InMemorySessionStore) dropLocked(token string) {
	session, ok := s.byKey[token]
	if !ok {
		return
	}
	delete(s.byKey, token)
	if tokens := s.byUser[session.UserID]; tokens != nil {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(s.byUser, session.UserID)
		}
	}
}
