package session

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSession is returned when an operation needs a session id and none was given.
var ErrNoSession = errors.New("session: missing session id")

// Store is a flat string key-value store scoped by session id. It has no
// transactions and no namespacing beyond the session id.
type Store interface {
	Get(ctx context.Context, sid, key string) (string, bool, error)
	Set(ctx context.Context, sid, key, value string) error
	Remove(ctx context.Context, sid, key string) error
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, sid, key string) (string, bool, error) {
	if sid == "" {
		return "", false, ErrNoSession
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[sid][key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, sid, key, value string) error {
	if sid == "" {
		return ErrNoSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	values, ok := m.data[sid]
	if !ok {
		values = make(map[string]string)
		m.data[sid] = values
	}
	values[key] = value
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, sid, key string) error {
	if sid == "" {
		return ErrNoSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if values, ok := m.data[sid]; ok {
		delete(values, key)
		if len(values) == 0 {
			delete(m.data, sid)
		}
	}
	return nil
}
