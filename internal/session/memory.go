package session

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]Session)}
}

func (m *MemoryStore) Get(_ context.Context, externalID int64) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[externalID]
	if !ok {
		return Idle(), nil
	}
	return s, nil
}

func (m *MemoryStore) Set(_ context.Context, externalID int64, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.State == "" {
		s.State = StateIdle
	}
	m.sessions[externalID] = s
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, externalID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, externalID)
	return nil
}
