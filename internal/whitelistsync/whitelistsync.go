// Package whitelistsync implements the whitelist/ban synchronization
// collaborator named as out-of-scope-but-referenced by the core hub: it
// compares each registered server's whitelist snapshot against a canonical
// source and resolves any mismatch through the same conflict-resolution
// rules internal/degrader applies inline during request handling.
package whitelistsync

import (
	"context"
	"sort"

	"github.com/game-hub/wbp-hub/internal/degrader"
	"github.com/game-hub/wbp-hub/internal/model"
)

// Entry is one canonical or server-reported whitelist record.
type Entry struct {
	PlayerID   string
	PlayerName string
}

// Source is the canonical whitelist/ban source of truth the core never talks
// to directly — an external collaborator, like collab.Store, that this
// worker alone depends on.
type Source interface {
	CanonicalWhitelist(ctx context.Context, serverID string) ([]Entry, error)
}

// ServerWhitelist reports what a specific server currently believes its
// whitelist to be, via whatever adapter connection the worker holds open.
type ServerWhitelist interface {
	ServerWhitelist(ctx context.Context, serverID string) ([]Entry, error)
}

// Syncer reconciles one server's whitelist against the canonical source.
type Syncer struct {
	source   Source
	servers  ServerWhitelist
	degrader *degrader.Degrader
}

// New builds a Syncer. deg supplies the conflict-resolution strategy
// (server_wins / client_wins / merge) configured for the hub, so the worker
// applies the exact same rule the degrader would apply inline.
func New(source Source, servers ServerWhitelist, deg *degrader.Degrader) *Syncer {
	return &Syncer{source: source, servers: servers, degrader: deg}
}

// Result summarizes one server's reconciliation pass.
type Result struct {
	ServerID      string
	Matched       bool
	Conflict      *model.SyncConflict
	MissingOnCore []Entry
	MissingOnServer []Entry
}

// Sync compares serverID's reported whitelist against the canonical source
// and, on mismatch, resolves the conflict via the configured strategy.
func (s *Syncer) Sync(ctx context.Context, serverID string) (*Result, error) {
	canonical, err := s.source.CanonicalWhitelist(ctx, serverID)
	if err != nil {
		return nil, err
	}
	reported, err := s.servers.ServerWhitelist(ctx, serverID)
	if err != nil {
		return nil, err
	}

	missingOnServer, missingOnCore := diff(canonical, reported)
	if len(missingOnServer) == 0 && len(missingOnCore) == 0 {
		return &Result{ServerID: serverID, Matched: true}, nil
	}

	conflict := &model.SyncConflict{
		ServerID: serverID,
		Kind:     model.ConflictWhitelistMismatch,
		Severity: "warning",
		Data: map[string]interface{}{
			"missingOnServer": missingOnServer,
			"missingOnCore":   missingOnCore,
		},
	}
	s.degrader.ResolveConflict(conflict)

	return &Result{
		ServerID:        serverID,
		Matched:         false,
		Conflict:        conflict,
		MissingOnCore:   missingOnCore,
		MissingOnServer: missingOnServer,
	}, nil
}

// diff returns entries present in canonical but not reported (missingOnServer)
// and entries present in reported but not canonical (missingOnCore).
func diff(canonical, reported []Entry) (missingOnServer, missingOnCore []Entry) {
	canonicalSet := make(map[string]Entry, len(canonical))
	for _, e := range canonical {
		canonicalSet[e.PlayerID] = e
	}
	reportedSet := make(map[string]Entry, len(reported))
	for _, e := range reported {
		reportedSet[e.PlayerID] = e
	}

	for id, e := range canonicalSet {
		if _, ok := reportedSet[id]; !ok {
			missingOnServer = append(missingOnServer, e)
		}
	}
	for id, e := range reportedSet {
		if _, ok := canonicalSet[id]; !ok {
			missingOnCore = append(missingOnCore, e)
		}
	}

	sort.Slice(missingOnServer, func(i, j int) bool { return missingOnServer[i].PlayerID < missingOnServer[j].PlayerID })
	sort.Slice(missingOnCore, func(i, j int) bool { return missingOnCore[i].PlayerID < missingOnCore[j].PlayerID })
	return missingOnServer, missingOnCore
}
