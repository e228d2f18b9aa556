// Package registry provides the in-memory presence registry: a
// last-writer-wins map from user identity to live connection id.
package registry

import (
	"context"
	"sync"
)

// Memory is the process-local relay.Registry implementation. State is
// non-persistent and rebuilt from scratch on restart.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string // userID -> connID
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

// Set installs userID -> connID, returning the connection id the new
// registration displaced, if any.
func (m *Memory) Set(_ context.Context, userID, connID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.entries[userID]
	m.entries[userID] = connID
	if prev == connID {
		return "", nil
	}
	return prev, nil
}

// Remove deletes the entry for userID only if it still points at connID.
// A stale disconnect after a newer registration is a no-op.
func (m *Memory) Remove(_ context.Context, userID, connID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[userID] != connID {
		return false, nil
	}
	delete(m.entries, userID)
	return true, nil
}

// Lookup returns the active connection id for userID.
func (m *Memory) Lookup(_ context.Context, userID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	connID, ok := m.entries[userID]
	return connID, ok, nil
}

// Users returns a snapshot of all registered user identities.
func (m *Memory) Users(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]string, 0, len(m.entries))
	for userID := range m.entries {
		users = append(users, userID)
	}
	return users, nil
}

// Close implements relay.Registry. The in-memory registry holds no
// external resources.
func (m *Memory) Close() error {
	return nil
}
