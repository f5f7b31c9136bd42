// Package secrets holds the key/value contract for TOTP shared secrets and its
// in-memory and HashiCorp Vault implementations.
package secrets

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned by Get when nothing is stored at the path.
	ErrNotFound = errors.New("secret not found")
	// ErrUnavailable wraps transport or backend failures.
	ErrUnavailable = errors.New("secret store unavailable")
)

// Store is a path-addressed secret map store.
type Store interface {
	Get(ctx context.Context, path string) (map[string]any, error)
	Put(ctx context.Context, path string, value map[string]any) error
}

// TOTPPath returns the secret path for an account's TOTP secret.
func TOTPPath(accountID string) string {
	return "totp/" + accountID
}

var _ Store = (*Memory)(nil)

// Memory keeps secrets in process memory. Values are copied on the way in
// and out.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]any)}
}

// Get returns a copy of the value at path, or ErrNotFound.
func (m *Memory) Get(_ context.Context, path string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[path]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMap(v), nil
}

// Put stores a copy of value at path.
func (m *Memory) Put(_ context.Context, path string, value map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[path] = copyMap(value)
	return nil
}

// Delete removes the value at path.
func (m *Memory) Delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, path)
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
