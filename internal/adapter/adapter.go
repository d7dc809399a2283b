// Package adapter defines the capability-set connection adapter contract
// shared by every transport variant (plugin, rcon, terminal).
package adapter

import (
	"context"
	"time"

	"github.com/game-hub/wbp-hub/internal/model"
)

// CommandResult is the outcome of a single sendCommand call.
type CommandResult struct {
	Data     map[string]interface{}
	Raw      string
	Duration time.Duration
}

// Adapter is the capability-set abstraction every connection-mode
// implementation satisfies. Not every adapter supports every method with
// full fidelity — Capabilities() advertises what actually works.
type Adapter interface {
	// Mode reports which connection mode this adapter implements.
	Mode() model.ConnectionMode

	// Capabilities reports the optional features this adapter instance
	// supports (e.g. "events", "raw", "structured_commands").
	Capabilities() map[string]bool

	// Connect establishes the underlying transport to the server.
	Connect(ctx context.Context, desc *model.ServerDescriptor) error

	// Disconnect tears down the transport. Safe to call more than once.
	Disconnect(ctx context.Context) error

	// IsConnected reports the current liveness of the transport.
	IsConnected() bool

	// SendCommand issues a structured operation and waits for its result.
	SendCommand(ctx context.Context, op string, data map[string]interface{}) (CommandResult, error)

	// SendRaw issues a raw, adapter-specific command string (e.g. a
	// console line) without structured interpretation of its reply.
	SendRaw(ctx context.Context, raw string) (CommandResult, error)

	// Events returns the channel adapters use to publish server-originated
	// occurrences. Adapters without an event capability return a nil channel.
	Events() <-chan model.Event
}

// Factory constructs an Adapter for a given connection mode.
type Factory func() Adapter
