// Package connmgr implements the connection-mode manager (C3): it chooses
// the preferred mode for each server, runs periodic health probes, drives
// the per-session connection state machine, and emits
// connectionModeSwitched transitions to the event bus.
//
// The state machine and periodic-probe shape follow the teacher's
// gobreaker-backed CircuitBreaker in infrastructure/resilience: a small
// set of named states, transitions triggered by probe outcomes, and a
// state-change callback rather than hand-rolled polling loops sprinkled
// through call sites.
package connmgr

import (
	"context"
	"sync"
	"time"

	"github.com/game-hub/wbp-hub/infrastructure/errors"
	"github.com/game-hub/wbp-hub/infrastructure/logging"
	"github.com/game-hub/wbp-hub/internal/adapter"
	"github.com/game-hub/wbp-hub/internal/model"
)

// DefaultProbeInterval is how often a connected session is health-checked.
const DefaultProbeInterval = 30 * time.Second

// State is a connection's lifecycle state.
type State string

const (
	StateNone         State = "none"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
	StateError        State = "error"
)

// validTransitions enumerates the state machine's allowed edges.
var validTransitions = map[State]map[State]bool{
	StateNone:         {StateConnecting: true},
	StateConnecting:   {StateConnected: true, StateError: true, StateClosed: true},
	StateConnected:    {StateDegraded: true, StateClosed: true, StateError: true},
	StateDegraded:     {StateReconnecting: true, StateClosed: true},
	StateReconnecting: {StateConnected: true, StateError: true, StateClosed: true},
	StateError:        {StateReconnecting: true, StateClosed: true},
	StateClosed:       {},
}

// TransitionEvent describes one state-machine edge taken for a server.
type TransitionEvent struct {
	ServerID string
	From     State
	To       State
	Mode     model.ConnectionMode
	At       time.Time
}

// managedConnection tracks one server's adapter, state and preference order.
type managedConnection struct {
	mu       sync.Mutex
	serverID string
	desc     *model.ServerDescriptor
	modes    []model.ConnectionMode
	current  adapter.Adapter
	state    State
	cancel   context.CancelFunc
}

// Manager owns the set of managed server connections.
type Manager struct {
	log *logging.Logger

	factories map[model.ConnectionMode]adapter.Factory

	mu    sync.RWMutex
	conns map[string]*managedConnection

	probeInterval time.Duration
	onTransition  func(TransitionEvent)
}

// New creates a connection-mode manager backed by the given adapter factories.
func New(log *logging.Logger, factories map[model.ConnectionMode]adapter.Factory, onTransition func(TransitionEvent)) *Manager {
	return &Manager{
		log:           log,
		factories:     factories,
		conns:         make(map[string]*managedConnection),
		probeInterval: DefaultProbeInterval,
		onTransition:  onTransition,
	}
}

// SetProbeInterval overrides the default health-probe cadence.
func (m *Manager) SetProbeInterval(d time.Duration) {
	if d > 0 {
		m.probeInterval = d
	}
}

// Connect establishes a connection to desc, preferring desc.PreferredMode and
// falling back through every mode desc.ConnectionConfig defines.
func (m *Manager) Connect(ctx context.Context, desc *model.ServerDescriptor) error {
	modes := preferenceOrder(desc)
	if len(modes) == 0 {
		return errors.InvalidRequest("server has no usable connection modes configured")
	}

	mc := &managedConnection{serverID: desc.ServerID, desc: desc, modes: modes, state: StateNone}
	m.mu.Lock()
	m.conns[desc.ServerID] = mc
	m.mu.Unlock()

	m.transition(mc, StateConnecting, "")

	var lastErr error
	for _, mode := range modes {
		factory, ok := m.factories[mode]
		if !ok {
			continue
		}
		a := factory()
		if err := a.Connect(ctx, desc); err != nil {
			lastErr = err
			continue
		}

		mc.mu.Lock()
		mc.current = a
		mc.mu.Unlock()
		m.transition(mc, StateConnected, mode)

		probeCtx, cancel := context.WithCancel(context.Background())
		mc.mu.Lock()
		mc.cancel = cancel
		mc.mu.Unlock()
		go m.runProbe(probeCtx, mc)
		return nil
	}

	m.transition(mc, StateError, "")
	if lastErr == nil {
		lastErr = errors.ConnectionFailed(desc.ServerID, nil)
	}
	return lastErr
}

// preferenceOrder builds the mode fallback order: preferred mode first,
// then every other configured mode in map order.
func preferenceOrder(desc *model.ServerDescriptor) []model.ConnectionMode {
	var modes []model.ConnectionMode
	seen := map[model.ConnectionMode]bool{}
	if desc.PreferredMode != "" {
		if _, ok := desc.ConnectionConfig[desc.PreferredMode]; ok {
			modes = append(modes, desc.PreferredMode)
			seen[desc.PreferredMode] = true
		}
	}
	for mode := range desc.ConnectionConfig {
		if !seen[mode] {
			modes = append(modes, mode)
			seen[mode] = true
		}
	}
	return modes
}

// Disconnect tears down the managed connection for a server.
func (m *Manager) Disconnect(ctx context.Context, serverID string) error {
	m.mu.Lock()
	mc, ok := m.conns[serverID]
	delete(m.conns, serverID)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	mc.mu.Lock()
	a := mc.current
	cancel := mc.cancel
	mc.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.transition(mc, StateClosed, "")
	if a != nil {
		return a.Disconnect(ctx)
	}
	return nil
}

// Adapter returns the active adapter for a server, if connected.
func (m *Manager) Adapter(serverID string) (adapter.Adapter, bool) {
	m.mu.RLock()
	mc, ok := m.conns[serverID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.current, mc.current != nil
}

// State reports the current state machine value for a server.
func (m *Manager) State(serverID string) (State, bool) {
	m.mu.RLock()
	mc, ok := m.conns[serverID]
	m.mu.RUnlock()
	if !ok {
		return StateNone, false
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.state, true
}

func (m *Manager) runProbe(ctx context.Context, mc *managedConnection) {
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.mu.Lock()
			a := mc.current
			state := mc.state
			mc.mu.Unlock()
			if a == nil {
				continue
			}

			if !a.IsConnected() {
				if state == StateConnected {
					m.transition(mc, StateDegraded, a.Mode())
				}
				continue
			}
			if state == StateDegraded {
				m.transition(mc, StateConnected, a.Mode())
			}
		}
	}
}

func (m *Manager) transition(mc *managedConnection, to State, mode model.ConnectionMode) {
	mc.mu.Lock()
	from := mc.state
	if from != StateNone && !validTransitions[from][to] {
		mc.mu.Unlock()
		return
	}
	mc.state = to
	mc.mu.Unlock()

	if m.log != nil {
		m.log.LogSessionEvent(context.Background(), mc.serverID, "connectionModeSwitched", true, nil)
	}
	if m.onTransition != nil {
		m.onTransition(TransitionEvent{ServerID: mc.serverID, From: from, To: to, Mode: mode, At: time.Now()})
	}
}
