package whitelistsync

import (
	"context"
	"sync"
)

// MemSource is an in-memory reference Source/ServerWhitelist implementation
// for cmd/syncworker when no real canonical whitelist provider or server
// query channel is wired in yet. Production deployments replace both with
// real collaborators (a persistent whitelist store, a live RCON/plugin
// query) without changing Syncer.
type MemSource struct {
	mu        sync.RWMutex
	canonical map[string][]Entry
	reported  map[string][]Entry
}

// NewMemSource builds an empty in-memory source.
func NewMemSource() *MemSource {
	return &MemSource{
		canonical: make(map[string][]Entry),
		reported:  make(map[string][]Entry),
	}
}

func (m *MemSource) SetCanonical(serverID string, entries []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canonical[serverID] = entries
}

func (m *MemSource) SetReported(serverID string, entries []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reported[serverID] = entries
}

func (m *MemSource) CanonicalWhitelist(ctx context.Context, serverID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.canonical[serverID]...), nil
}

func (m *MemSource) ServerWhitelist(ctx context.Context, serverID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.reported[serverID]...), nil
}

var (
	_ Source          = (*MemSource)(nil)
	_ ServerWhitelist = (*MemSource)(nil)
)
