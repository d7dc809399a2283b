// Package collab defines the contracts for systems the hub depends on but does
// not implement: the persistent store, the audit log, the token validator, and
// the chat-platform adapter. The core only ever depends on these interfaces.
package collab

import (
	"context"
	"time"

	"github.com/game-hub/wbp-hub/internal/model"
)

// Store is the persistent-store collaborator contract.
type Store interface {
	GetServer(ctx context.Context, serverID string) (*model.ServerDescriptor, error)
	ListServers(ctx context.Context) ([]*model.ServerDescriptor, error)
	CreateServer(ctx context.Context, s *model.ServerDescriptor) error
	UpdateServer(ctx context.Context, s *model.ServerDescriptor) error
	DeleteServer(ctx context.Context, serverID string) error

	ListACL(ctx context.Context, userID string) ([]string, error)

	ListBindings(ctx context.Context, serverID string) ([]*model.Binding, error)
	CreateBinding(ctx context.Context, b *model.Binding) error
	UpdateBinding(ctx context.Context, b *model.Binding) error
	DeleteBinding(ctx context.Context, bindingID string) error

	CreateToken(ctx context.Context, tokenHash, serverID string, expiresAt time.Time) (string, error)
	GetToken(ctx context.Context, tokenID string) (serverID string, expiresAt time.Time, err error)
	DeleteToken(ctx context.Context, tokenID string) error

	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
	CleanupAudit(ctx context.Context, olderThan time.Time) (int64, error)
}

// AuditResult is the outcome of an audited action.
type AuditResult string

const (
	AuditSuccess AuditResult = "success"
	AuditFailure AuditResult = "failure"
	AuditError   AuditResult = "error"
)

// AuditEntry is one append-only audit log record.
type AuditEntry struct {
	UserID       string
	ServerID     string
	Op           string
	Payload      map[string]interface{}
	Result       AuditResult
	ErrorMessage string
	IP           string
	UserAgent    string
	At           time.Time
}

// AuditFilter restricts an audit query.
type AuditFilter struct {
	UserID   string
	ServerID string
	Op       string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// AuditLog is the append-only audit stream collaborator contract.
// Store implementations typically satisfy both Store and AuditLog directly,
// but components depend only on the narrower interface they need.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// TokenDecision is the result of validating a raw session token.
type TokenDecision struct {
	Valid     bool
	ServerID  string
	Expired   bool
	IPAllowed bool
}

// TokenValidator validates a raw token presented during the auth handshake.
type TokenValidator interface {
	Validate(ctx context.Context, rawToken, clientIP string) (TokenDecision, error)
}

// GroupMessage is the chat-platform adapter's message envelope.
type GroupMessage struct {
	GroupID   string
	UserID    string
	UserName  string
	Content   string
	At        time.Time
	MessageID string
	ReplyTo   string
}

// ChatPlatform delivers group messages into the message router and accepts
// outbound messages destined for a group.
type ChatPlatform interface {
	Inbound() <-chan GroupMessage
	SendOutbound(ctx context.Context, groupID string, msg GroupMessage) error
}
