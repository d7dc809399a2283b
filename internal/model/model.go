// Package model defines the hub's core entities: server descriptors, sessions,
// pending requests, subscriptions, events, auth-failure records, pending
// operations, sync conflicts, bindings and cache entries.
package model

import "time"

// ConnectionMode is a concrete transport variant for a server connection.
type ConnectionMode string

const (
	ModePlugin   ConnectionMode = "plugin"
	ModeRCON     ConnectionMode = "rcon"
	ModeTerminal ConnectionMode = "terminal"
)

// ServerDescriptor is the registered identity of a remote game server.
type ServerDescriptor struct {
	ServerID         string
	CoreKind         string
	PreferredMode    ConnectionMode
	ConnectionConfig map[ConnectionMode]map[string]string
	OwnerID          string
	Tags             []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SessionStatus is the lifecycle state of a live connection.
type SessionStatus string

const (
	StatusConnecting     SessionStatus = "connecting"
	StatusAuthenticating SessionStatus = "authenticating"
	StatusConnected      SessionStatus = "connected"
	StatusDegraded       SessionStatus = "degraded"
	StatusClosing        SessionStatus = "closing"
	StatusClosed         SessionStatus = "closed"
	StatusError          SessionStatus = "error"
)

// Session is a live connection to one server via one adapter.
type Session struct {
	SessionID     string
	ServerID      string
	Mode          ConnectionMode
	Status        SessionStatus
	Capabilities  map[string]bool
	LastActivity  time.Time
	Authenticated bool
	RemoteIP      string
}

// IsConnected reports whether the session is in the connected state.
func (s *Session) IsConnected() bool { return s.Status == StatusConnected }

// PendingRequest is a correlation record for an in-flight request.
type PendingRequest struct {
	RequestID string
	Op        string
	Deadline  time.Time
	Result    chan RequestResult
}

// RequestResult is the terminal outcome delivered to a PendingRequest's sink.
type RequestResult struct {
	Data  map[string]interface{}
	Err   error
	Timed bool
}

// SubscriptionFilter restricts which events a subscription receives.
type SubscriptionFilter struct {
	ServerID  string
	Kinds     map[string]bool
	PlayerID  string
	Severity  string
	TimeFrom  time.Time
	TimeTo    time.Time
}

// Matches reports whether the given event satisfies every specified predicate.
func (f SubscriptionFilter) Matches(e Event) bool {
	if f.ServerID != "" && f.ServerID != e.ServerID {
		return false
	}
	if len(f.Kinds) > 0 && !f.Kinds[e.Kind] {
		return false
	}
	if f.PlayerID != "" {
		if pid, ok := e.Payload["playerId"].(string); !ok || pid != f.PlayerID {
			return false
		}
	}
	if f.Severity != "" {
		if sev, ok := e.Payload["severity"].(string); !ok || sev != f.Severity {
			return false
		}
	}
	if !f.TimeFrom.IsZero() && e.Timestamp.Before(f.TimeFrom) {
		return false
	}
	if !f.TimeTo.IsZero() && e.Timestamp.After(f.TimeTo) {
		return false
	}
	return true
}

// Subscription is a standing interest in events matching a filter.
type Subscription struct {
	SubscriptionID string
	SessionID      string
	Filter         SubscriptionFilter
	CreatedAt      time.Time
	LastActivity   time.Time
	Active         bool
}

// Event is an immutable occurrence reported by a server.
type Event struct {
	EventID   string
	ServerID  string
	Kind      string
	Timestamp time.Time
	Payload   map[string]interface{}
}

// AuthFailureRecord tracks authentication failures for one (ip, serverId) pair.
type AuthFailureRecord struct {
	IP            string
	ServerID      string
	Count         int
	FirstFailure  time.Time
	LastFailure   time.Time
	NextAllowedAt time.Time
	Blocked       bool
	BlockUntil    time.Time
}

// PendingOperationStatus is the lifecycle state of a deferred side-effect.
type PendingOperationStatus string

const (
	OpPending  PendingOperationStatus = "pending"
	OpReplayed PendingOperationStatus = "replayed"
	OpExpired  PendingOperationStatus = "expired"
)

// PendingOperation is a deferred side-effect queued against an unreachable server.
type PendingOperation struct {
	OpID      string
	ServerID  string
	Kind      string
	Payload   map[string]interface{}
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    PendingOperationStatus
}

// SyncConflictKind enumerates the kinds of synchronized-state conflicts.
type SyncConflictKind string

const (
	ConflictWhitelistMismatch  SyncConflictKind = "whitelist_mismatch"
	ConflictPlayerIdentity     SyncConflictKind = "player_identity"
	ConflictOperationConflict  SyncConflictKind = "operation_conflict"
	ConflictDataVersion        SyncConflictKind = "data_version"
)

// SyncConflict records a detected conflict in synchronized state.
type SyncConflict struct {
	ServerID   string
	Kind       SyncConflictKind
	Data       map[string]interface{}
	Severity   string
	Resolution string
	Resolved   bool
}

// BindingKind is the routing category of a group-to-server binding.
type BindingKind string

const (
	BindingChat       BindingKind = "chat"
	BindingEvent      BindingKind = "event"
	BindingCommand    BindingKind = "command"
	BindingMonitoring BindingKind = "monitoring"
)

// FilterRule is one step of a binding's filter pipeline.
type FilterRule struct {
	Type    string // "regex", "keyword", "length"
	Pattern string
	Action  string // "block" or "transform"
}

// Binding maps an external chat group to a server for one routing kind.
type Binding struct {
	BindingID       string
	GroupID         string
	ServerID        string
	BindingKind     BindingKind
	Filters         []FilterRule
	FormatTemplate  string
	RateLimitMax    int
	RateLimitWindow time.Duration
	Disabled        bool
	LastActivity    time.Time
}

// CacheEntry is a single entry in the bounded cache/preload layer.
type CacheEntry struct {
	Key          string
	Value        []byte
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int64
	Size         int64
	TTL          time.Duration
	Compressed   bool
}
