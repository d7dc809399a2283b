// Package collabstore provides an in-memory reference implementation of
// internal/collab.Store and internal/collab.AuditLog, for local development
// and for the cmd/hubctl and cmd/syncworker reference tools. The hub itself
// treats the persistent store as an external collaborator (spec Non-goal:
// storage-engine internals); this package exists so those tools have
// something concrete to operate against without requiring a real database.
package collabstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/game-hub/wbp-hub/infrastructure/errors"
	"github.com/game-hub/wbp-hub/infrastructure/middleware"
	"github.com/game-hub/wbp-hub/infrastructure/state"
	"github.com/game-hub/wbp-hub/internal/collab"
	"github.com/game-hub/wbp-hub/internal/model"
)

// snapshotKey is the key the durable backend stores the store's registration
// state under. Audit entries and tokens are deliberately excluded: audit is
// expected to flow to an append-only log of its own, and tokens are
// short-lived enough that losing them on restart just forces re-issue.
const snapshotKey = "collabstore:snapshot"

// MemStore is a mutex-guarded, process-local implementation of collab.Store.
// An optional state.PersistenceBackend lets the registration surface
// (servers, bindings, ACLs) round-trip through Persist/Restore instead of
// living only in the map fields below — NewWithBackend wires that seam in
// place of a real database for local development, while leaving a swap to a
// disk- or database-backed PersistenceBackend a one-line change at the call
// site.
type MemStore struct {
	mu sync.RWMutex

	servers  map[string]*model.ServerDescriptor
	acl      map[string][]string // userID -> ops
	bindings map[string]*model.Binding
	tokens   map[string]tokenRecord
	audit    []collab.AuditEntry

	backend state.PersistenceBackend
}

type tokenRecord struct {
	serverID  string
	expiresAt time.Time
}

// snapshot is the subset of store state that gets persisted.
type snapshot struct {
	Servers  map[string]*model.ServerDescriptor
	Bindings map[string]*model.Binding
	ACL      map[string][]string
}

// New creates an empty in-memory store with no durability.
func New() *MemStore {
	return &MemStore{
		servers:  make(map[string]*model.ServerDescriptor),
		acl:      make(map[string][]string),
		bindings: make(map[string]*model.Binding),
		tokens:   make(map[string]tokenRecord),
	}
}

// NewWithBackend creates a store that persists its registration surface to
// backend after every mutation, and can be rehydrated from it via Restore.
func NewWithBackend(backend state.PersistenceBackend) *MemStore {
	s := New()
	s.backend = backend
	return s
}

// Persist writes the current servers/bindings/ACL state to the configured
// backend. A no-op when the store has no backend.
func (s *MemStore) Persist(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	s.mu.RLock()
	snap := snapshot{Servers: s.servers, Bindings: s.bindings, ACL: s.acl}
	data, err := json.Marshal(snap)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return s.backend.Save(ctx, snapshotKey, data)
}

// Restore rehydrates servers/bindings/ACL from the configured backend,
// replacing whatever is currently in memory. Returns nil (leaving the store
// empty) if no snapshot has been saved yet.
func (s *MemStore) Restore(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	data, err := s.backend.Load(ctx, snapshotKey)
	if err != nil {
		if err == state.ErrNotFound {
			return nil
		}
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Servers != nil {
		s.servers = snap.Servers
	}
	if snap.Bindings != nil {
		s.bindings = snap.Bindings
	}
	if snap.ACL != nil {
		s.acl = snap.ACL
	}
	return nil
}

// persistAsync fires a best-effort snapshot after a mutation; persistence
// failures never fail the mutating call itself, since the in-memory state
// already reflects the change.
func (s *MemStore) persistAsync() {
	if s.backend == nil {
		return
	}
	go s.Persist(context.Background())
}

func (s *MemStore) GetServer(ctx context.Context, serverID string) (*model.ServerDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sd, ok := s.servers[serverID]
	if !ok {
		return nil, errors.ServerUnavailable(serverID).WithDetails("reason", "not registered")
	}
	cp := *sd
	return &cp, nil
}

func (s *MemStore) ListServers(ctx context.Context) ([]*model.ServerDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ServerDescriptor, 0, len(s.servers))
	for _, sd := range s.servers {
		cp := *sd
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out, nil
}

func (s *MemStore) CreateServer(ctx context.Context, sd *model.ServerDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.servers[sd.ServerID]; exists {
		return errors.InvalidRequest("server already registered: " + sd.ServerID)
	}
	now := time.Now()
	sd.CreatedAt = now
	sd.UpdatedAt = now
	cp := *sd
	s.servers[sd.ServerID] = &cp
	defer s.persistAsync()
	return nil
}

func (s *MemStore) UpdateServer(ctx context.Context, sd *model.ServerDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.servers[sd.ServerID]
	if !ok {
		return errors.ServerUnavailable(sd.ServerID).WithDetails("reason", "not registered")
	}
	sd.CreatedAt = existing.CreatedAt
	sd.UpdatedAt = time.Now()
	cp := *sd
	s.servers[sd.ServerID] = &cp
	defer s.persistAsync()
	return nil
}

func (s *MemStore) DeleteServer(ctx context.Context, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[serverID]; !ok {
		return errors.ServerUnavailable(serverID).WithDetails("reason", "not registered")
	}
	delete(s.servers, serverID)
	for id, b := range s.bindings {
		if b.ServerID == serverID {
			delete(s.bindings, id)
		}
	}
	for id, t := range s.tokens {
		if t.serverID == serverID {
			delete(s.tokens, id)
		}
	}
	defer s.persistAsync()
	return nil
}

func (s *MemStore) ListACL(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.acl[userID]))
	copy(out, s.acl[userID])
	return out, nil
}

// GrantACL adds an operation to a user's allowed set. Not part of
// collab.Store (which has no mutation method for ACLs); exposed directly for
// the operator CLI to call.
func (s *MemStore) GrantACL(userID, op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.acl[userID] {
		if existing == op {
			return
		}
	}
	s.acl[userID] = append(s.acl[userID], op)
	s.persistAsync()
}

func (s *MemStore) ListBindings(ctx context.Context, serverID string) ([]*model.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Binding, 0)
	for _, b := range s.bindings {
		if b.ServerID == serverID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BindingID < out[j].BindingID })
	return out, nil
}

func (s *MemStore) CreateBinding(ctx context.Context, b *model.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.BindingID == "" {
		b.BindingID = uuid.NewString()
	} else if !middleware.IsValidUUID(b.BindingID) {
		return errors.InvalidRequest("binding id is not a valid UUID: " + b.BindingID)
	}
	cp := *b
	s.bindings[b.BindingID] = &cp
	defer s.persistAsync()
	return nil
}

func (s *MemStore) UpdateBinding(ctx context.Context, b *model.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bindings[b.BindingID]; !ok {
		return errors.InvalidRequest("binding not found: " + b.BindingID)
	}
	cp := *b
	s.bindings[b.BindingID] = &cp
	defer s.persistAsync()
	return nil
}

func (s *MemStore) DeleteBinding(ctx context.Context, bindingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bindings[bindingID]; !ok {
		return errors.InvalidRequest("binding not found: " + bindingID)
	}
	delete(s.bindings, bindingID)
	defer s.persistAsync()
	return nil
}

func (s *MemStore) CreateToken(ctx context.Context, tokenHash, serverID string, expiresAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.tokens[id] = tokenRecord{serverID: serverID, expiresAt: expiresAt}
	return id, nil
}

func (s *MemStore) GetToken(ctx context.Context, tokenID string) (string, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tokens[tokenID]
	if !ok {
		return "", time.Time{}, errors.InvalidRequest("token not found")
	}
	return rec.serverID, rec.expiresAt, nil
}

func (s *MemStore) DeleteToken(ctx context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenID)
	return nil
}

func (s *MemStore) AppendAudit(ctx context.Context, entry collab.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	s.audit = append(s.audit, entry)
	return nil
}

func (s *MemStore) QueryAudit(ctx context.Context, filter collab.AuditFilter) ([]collab.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []collab.AuditEntry
	for _, e := range s.audit {
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.ServerID != "" && e.ServerID != filter.ServerID {
			continue
		}
		if filter.Op != "" && e.Op != filter.Op {
			continue
		}
		if !filter.Since.IsZero() && e.At.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && e.At.After(filter.Until) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) CleanupAudit(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.audit[:0]
	var removed int64
	for _, e := range s.audit {
		if e.At.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return removed, nil
}

var _ collab.Store = (*MemStore)(nil)
var _ collab.AuditLog = (*MemStore)(nil)
