package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// MemoryStore is a process-local store for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]domain.ConversationState
}

// NewMemoryStore returns an empty MemoryStore; ttl <= 0 selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, items: map[string]domain.ConversationState{}}
}

// Load implements domain.SessionStore.
func (m *MemoryStore) Load(_ domain.Context, id string) (domain.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.items[id]
	if !ok || m.now().Sub(st.UpdatedAt) > m.ttl {
		delete(m.items, id)
		return domain.ConversationState{}, fmt.Errorf("op=session.memory.load: %w: %s", domain.ErrNotFound, id)
	}
	return st.Clone(), nil
}

// Save implements domain.SessionStore.
func (m *MemoryStore) Save(_ domain.Context, st domain.ConversationState) error {
	if st.ID == "" {
		return fmt.Errorf("op=session.memory.save: %w: empty id", domain.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st = st.Clone()
	st.UpdatedAt = m.now()
	m.items[st.ID] = st
	return nil
}

// Delete implements domain.SessionStore.
func (m *MemoryStore) Delete(_ domain.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// Sweep drops expired sessions and reports how many were removed.
func (m *MemoryStore) Sweep(_ domain.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, st := range m.items {
		if now.Sub(st.UpdatedAt) > m.ttl {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
