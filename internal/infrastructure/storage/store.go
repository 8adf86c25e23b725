package storage

import (
	"context"
	"errors"
	"sync"
)

// Scope selects which family of ids a value is attached to
type Scope string

const (
	ScopeTab    Scope = "tab"
	ScopeWindow Scope = "window"
)

// ErrInvalidScope is returned for scopes other than tab and window
var ErrInvalidScope = errors.New("invalid storage scope")

// Store is a durable key-value store scoped to a tab or window id.
// Values are opaque bytes; callers encode them.
type Store interface {
	Get(ctx context.Context, scope Scope, id string, key string) ([]byte, bool, error)
	Set(ctx context.Context, scope Scope, id string, key string, value []byte) error
	Delete(ctx context.Context, scope Scope, id string, key string) error
	// List returns every id in scope that holds key
	List(ctx context.Context, scope Scope, key string) (map[string][]byte, error)
}

func validScope(scope Scope) error {
	if scope != ScopeTab && scope != ScopeWindow {
		return ErrInvalidScope
	}
	return nil
}

type entryKey struct {
	scope Scope
	id    string
	key   string
}

// Memory is an in-process Store. It does not survive restarts.
type Memory struct {
	mu      sync.RWMutex
	entries map[entryKey][]byte
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{entries: make(map[entryKey][]byte)}
}

// Get returns the value stored under key for id
func (m *Memory) Get(_ context.Context, scope Scope, id, key string) ([]byte, bool, error) {
	if err := validScope(scope); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[entryKey{scope, id, key}]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set stores value under key for id
func (m *Memory) Set(_ context.Context, scope Scope, id, key string, value []byte) error {
	if err := validScope(scope); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entryKey{scope, id, key}] = append([]byte(nil), value...)
	return nil
}

// Delete removes key for id; missing entries are not an error
func (m *Memory) Delete(_ context.Context, scope Scope, id, key string) error {
	if err := validScope(scope); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, entryKey{scope, id, key})
	return nil
}

// List returns every id in scope holding key
func (m *Memory) List(_ context.Context, scope Scope, key string) (map[string][]byte, error) {
	if err := validScope(scope); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte)
	for k, v := range m.entries {
		if k.scope == scope && k.key == key {
			out[k.id] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

// Copy duplicates every value of one id onto another, the way a browser
// carries session values over when it duplicates or restores a tab.
func (m *Memory) Copy(scope Scope, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.entries {
		if k.scope == scope && k.id == from {
			m.entries[entryKey{scope, to, k.key}] = append([]byte(nil), v...)
		}
	}
}
