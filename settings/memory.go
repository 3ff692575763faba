package settings

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps documents in process memory. It is used when the bot
// runs without a database file and by tests.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]map[uint64][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]map[uint64][]byte)}
}

func (m *MemoryBackend) Find(_ context.Context, kind string, id uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.docs[kind][id]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), body...), nil
}

func (m *MemoryBackend) FindAll(_ context.Context, kind string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uint64, 0, len(m.docs[kind]))
	for id := range m.docs[kind] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	bodies := make([][]byte, 0, len(ids))
	for _, id := range ids {
		bodies = append(bodies, append([]byte(nil), m.docs[kind][id]...))
	}
	return bodies, nil
}

func (m *MemoryBackend) Upsert(_ context.Context, kind string, id uint64, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[kind] == nil {
		m.docs[kind] = make(map[uint64][]byte)
	}
	m.docs[kind][id] = append([]byte(nil), body...)
	return nil
}

func (m *MemoryBackend) Kinds(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kinds := make([]string, 0, len(m.docs))
	for kind := range m.docs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds, nil
}
