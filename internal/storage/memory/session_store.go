// Package memory provides in-memory storage backends
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tsantana84/codex-http/internal/coordinator"
)

var (
	errSessionNil     = errors.New("session cannot be nil")
	errSessionIDEmpty = errors.New("session ID cannot be empty")
)

// SessionStore implements coordinator.SessionStore using an in-memory map.
// Sessions are stored by pointer: the session guards its own state.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*coordinator.Session
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*coordinator.Session),
	}
}

// Create registers session. It fails with coordinator.ErrSessionExists when
// the ID is already taken.
func (s *SessionStore) Create(ctx context.Context, session *coordinator.Session) error {
	if session == nil {
		return errSessionNil
	}
	id := session.ID()
	if id == "" {
		return errSessionIDEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; exists {
		return coordinator.ErrSessionExists
	}
	s.sessions[id] = session
	return nil
}

// Get retrieves a session by ID
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*coordinator.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

// Delete removes a session and returns it. Only one of several concurrent
// callers observes ok=true for the same ID.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) (*coordinator.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	return session, ok
}

// List returns a snapshot of all sessions ordered by creation time
func (s *SessionStore) List(ctx context.Context) []*coordinator.Session {
	s.mu.RLock()
	out := make([]*coordinator.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out
}

// Count returns the number of stored sessions
func (s *SessionStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ coordinator.SessionStore = (*SessionStore)(nil)
