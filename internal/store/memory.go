package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process ConversationStore. History is lost when the
// process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Turn)}
}

func (m *MemoryStore) Append(_ context.Context, session string, turns ...Turn) error {
	if err := validateTurns(turns); err != nil {
		return err
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		m.sessions[session] = append(m.sessions[session], t)
	}
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, session string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.sessions[session]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	if len(all) == 0 {
		return nil, nil
	}
	out := make([]Turn, len(all))
	copy(out, all)
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context, session string) error {
	m.mu.Lock()
	delete(m.sessions, session)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
