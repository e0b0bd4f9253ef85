package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/perfgo/testinsight/model"
)

// MemoryStore keeps sessions in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions []*model.Session
}

// NewMemoryStore creates a store holding copies of the given sessions.
func NewMemoryStore(sessions ...*model.Session) *MemoryStore {
	m := &MemoryStore{}
	for _, s := range sessions {
		m.sessions = append(m.sessions, s.Clone())
	}
	return m
}

func (m *MemoryStore) LoadAll(ctx context.Context) ([]*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*model.Session{}, m.sessions...), nil
}

func (m *MemoryStore) Save(ctx context.Context, s *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexOf(s.SessionID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, s.SessionID)
	}
	m.sessions = append(m.sessions, s.Clone())
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.sessions[i], nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
	return nil
}

func (m *MemoryStore) indexOf(id string) int {
	for i, s := range m.sessions {
		if s.SessionID == id {
			return i
		}
	}
	return -1
}
