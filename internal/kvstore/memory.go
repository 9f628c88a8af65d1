package kvstore

import (
	"sync"

	"codeberg.org/mutker/measprefs/internal/errors"
)

type entry struct {
	kind  Kind
	value any
}

// MemoryStore is a non-durable Store for tests and for hosts that manage
// persistence themselves.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]entry)}
}

func (m *MemoryStore) get(key string, kind Kind) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.values[key]
	if !ok || e.kind != kind {
		return nil, false
	}
	return e.value, true
}

func (m *MemoryStore) set(key string, kind Kind, value any) error {
	if err := validKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.values == nil {
		return errors.New().New(ErrStoreClosed)
	}
	m.values[key] = entry{kind: kind, value: value}
	return nil
}

func (m *MemoryStore) LookupBool(key string) (bool, bool) {
	v, ok := m.get(key, KindBool)
	if !ok {
		return false, false
	}
	return v.(bool), true
}

func (m *MemoryStore) LookupLong(key string) (int64, bool) {
	v, ok := m.get(key, KindLong)
	if !ok {
		return 0, false
	}
	return v.(int64), true
}

func (m *MemoryStore) LookupString(key string) (string, bool) {
	v, ok := m.get(key, KindString)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (m *MemoryStore) Contains(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.values[key]
	return ok
}

func (m *MemoryStore) SetBool(key string, value bool) error     { return m.set(key, KindBool, value) }
func (m *MemoryStore) SetLong(key string, value int64) error    { return m.set(key, KindLong, value) }
func (m *MemoryStore) SetString(key string, value string) error { return m.set(key, KindString, value) }

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = nil
	return nil
}
