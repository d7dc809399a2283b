// Package degrader implements the business-error degrader (C8):
// permission-denial escalation tracking, a bounded oldest-first-eviction
// queue of operations deferred against an unreachable server, and
// deterministic sync-conflict resolution.
package degrader

import (
	"sort"
	"sync"
	"time"

	"github.com/game-hub/wbp-hub/internal/hubconfig"
	"github.com/game-hub/wbp-hub/internal/model"
)

// permissionTracker counts consecutive permission denials per (user, op).
type permissionTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

// Degrader coordinates graceful degradation when operations fail or a
// server becomes unreachable.
type Degrader struct {
	cfg hubconfig.DegradationConfig

	perm permissionTracker

	mu      sync.Mutex
	pending map[string][]*model.PendingOperation // keyed by serverId, oldest first
}

// New creates a business-error degrader.
func New(cfg hubconfig.DegradationConfig) *Degrader {
	return &Degrader{
		cfg:     cfg,
		perm:    permissionTracker{counts: make(map[string]int)},
		pending: make(map[string][]*model.PendingOperation),
	}
}

// RecordPermissionDenial tracks a denial for (userID, op) and reports
// whether the caller's denial count has now reached the configured retry
// escalation threshold and should stop retrying.
func (d *Degrader) RecordPermissionDenial(userID, op string) (escalate bool, attempts int) {
	key := userID + "|" + op
	d.perm.mu.Lock()
	defer d.perm.mu.Unlock()
	d.perm.counts[key]++
	attempts = d.perm.counts[key]
	return attempts >= d.cfg.MaxPermissionRetries, attempts
}

// ResetPermissionDenial clears the denial count after a successful call.
func (d *Degrader) ResetPermissionDenial(userID, op string) {
	key := userID + "|" + op
	d.perm.mu.Lock()
	defer d.perm.mu.Unlock()
	delete(d.perm.counts, key)
}

// Defer queues an operation against an unreachable server for later replay.
// When the server's queue is at capacity, the oldest pending operation is
// evicted to make room.
func (d *Degrader) Defer(op *model.PendingOperation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.pending[op.ServerID]
	if d.cfg.MaxCachedOperations > 0 && len(q) >= d.cfg.MaxCachedOperations {
		q = q[1:]
	}
	q = append(q, op)
	d.pending[op.ServerID] = q
}

// DeferredFor returns a server's deferred operations, oldest first.
func (d *Degrader) DeferredFor(serverID string) []*model.PendingOperation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*model.PendingOperation, len(d.pending[serverID]))
	copy(out, d.pending[serverID])
	return out
}

// ReplayReady drains every non-expired deferred operation for a server,
// marking them replayed, and discards any that have expired.
func (d *Degrader) ReplayReady(serverID string) []*model.PendingOperation {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	var ready []*model.PendingOperation
	for _, op := range d.pending[serverID] {
		if !op.ExpiresAt.IsZero() && now.After(op.ExpiresAt) {
			op.Status = model.OpExpired
			continue
		}
		op.Status = model.OpReplayed
		ready = append(ready, op)
	}
	delete(d.pending, serverID)
	return ready
}

// ResolveConflict applies the configured resolution strategy to a detected
// sync conflict, mutating and returning it with Resolution/Resolved set.
//
// For operation_conflict kinds, the newest operation wins regardless of
// direction (add vs. remove), tie-broken by a later timestamp and then by
// lexicographically greater opId — this is the spec's own resolution for
// that conflict kind and is applied unconditionally, independent of the
// server_wins/client_wins strategy used for other kinds.
func (d *Degrader) ResolveConflict(c *model.SyncConflict) *model.SyncConflict {
	switch c.Kind {
	case model.ConflictOperationConflict:
		resolveOperationConflict(c)
	default:
		c.Resolution = d.cfg.ConflictResolutionStrategy
		c.Resolved = true
	}
	return c
}

// resolveOperationConflict keeps the newest competing operation recorded in
// c.Data["operations"] (a []map[string]interface{}, each with "opId",
// "timestamp" and "action"), tie-broken by opId.
func resolveOperationConflict(c *model.SyncConflict) {
	ops, ok := c.Data["operations"].([]map[string]interface{})
	if !ok || len(ops) == 0 {
		c.Resolution = "no_operations"
		c.Resolved = false
		return
	}

	sort.Slice(ops, func(i, j int) bool {
		ti, _ := ops[i]["timestamp"].(time.Time)
		tj, _ := ops[j]["timestamp"].(time.Time)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		oi, _ := ops[i]["opId"].(string)
		oj, _ := ops[j]["opId"].(string)
		return oi > oj
	})

	winner := ops[0]
	c.Resolution = "kept_newest:" + fmtOpID(winner)
	c.Resolved = true
}

func fmtOpID(op map[string]interface{}) string {
	id, _ := op["opId"].(string)
	return id
}
