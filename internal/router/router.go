// Package router implements the request router (C5): handler registration
// by dotted operation tag, request/response correlation against pending
// requests, and mapping of unregistered or failing operations onto the
// protocol's error taxonomy.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/game-hub/wbp-hub/infrastructure/errors"
	"github.com/game-hub/wbp-hub/infrastructure/logging"
	"github.com/game-hub/wbp-hub/infrastructure/metrics"
	"github.com/game-hub/wbp-hub/infrastructure/security"
	"github.com/game-hub/wbp-hub/internal/model"
)

// Handler executes one operation against a session, returning the
// response payload or a *errors.ServiceError describing the failure.
type Handler func(ctx context.Context, sess *model.Session, data map[string]interface{}) (map[string]interface{}, error)

// Router dispatches incoming requests to registered operation handlers.
type Router struct {
	log    *logging.Logger
	met    *metrics.Metrics
	replay *security.ReplayProtection

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty request router. Requests carrying a "requestId"
// field in their data payload (the frame correlation id, per
// internal/protocol) are deduplicated within a 5 minute window so a
// retransmitted frame never re-executes a side-effecting handler.
func New(log *logging.Logger, met *metrics.Metrics) *Router {
	return &Router{
		log:      log,
		met:      met,
		replay:   security.NewReplayProtectionWithMaxSize(5*time.Minute, 50000, log),
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a dotted operation tag (e.g. "players.list").
// Registering the same tag twice replaces the existing handler.
func (r *Router) Register(op string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[op] = h
}

// Unregister removes a handler, if present.
func (r *Router) Unregister(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, op)
}

// Ops lists every currently registered operation tag.
func (r *Router) Ops() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	return ops
}

// Dispatch routes a single request to its handler, translating an unknown
// operation or handler failure into the protocol's error taxonomy.
func (r *Router) Dispatch(ctx context.Context, sess *model.Session, op string, data map[string]interface{}) (map[string]interface{}, error) {
	r.mu.RLock()
	h, ok := r.handlers[op]
	r.mu.RUnlock()

	serverID := ""
	if sess != nil {
		serverID = sess.ServerID
	}

	if requestID, _ := data["requestId"].(string); requestID != "" {
		if !r.replay.ValidateAndMark(requestID) {
			if r.met != nil {
				r.met.RecordAdapterCommand("router", serverID, op, "duplicate_request", 0)
			}
			return nil, errors.InvalidRequest("duplicate requestId").WithDetails("requestId", requestID)
		}
	}

	if !ok {
		if r.met != nil {
			r.met.RecordAdapterCommand("router", serverID, op, "unknown_operation", 0)
		}
		return nil, errors.UnknownOperation(op)
	}

	start := time.Now()
	result, err := h(ctx, sess, data)
	duration := time.Since(start)

	if err != nil {
		if r.met != nil {
			r.met.RecordAdapterCommand("router", serverID, op, "error", duration)
		}
		if r.log != nil {
			r.log.LogAdapterCommand(ctx, serverID, op, duration, err)
		}
		if errors.IsServiceError(err) {
			return nil, err
		}
		return nil, errors.RequestFailed(op+" failed", err)
	}

	if r.met != nil {
		r.met.RecordAdapterCommand("router", serverID, op, "ok", duration)
	}
	return result, nil
}
