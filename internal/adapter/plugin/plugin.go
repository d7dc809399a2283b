// Package plugin implements the websocket plugin connection adapter: the
// hub dials a game server's companion plugin over a persistent
// gorilla/websocket connection and exchanges U-WBP v2 frames directly.
// The read/write pump structure follows the ping/pong keepalive
// convention used across the example pack's websocket clients.
package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/game-hub/wbp-hub/infrastructure/errors"
	"github.com/game-hub/wbp-hub/infrastructure/httputil"
	"github.com/game-hub/wbp-hub/infrastructure/logging"
	"github.com/game-hub/wbp-hub/internal/adapter"
	"github.com/game-hub/wbp-hub/internal/model"
	"github.com/game-hub/wbp-hub/internal/protocol"
)

// Adapter connects to a server's plugin over a websocket.
type Adapter struct {
	log *logging.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	serverID  string

	pending   map[string]chan protocol.Frame
	pendingMu sync.Mutex

	events chan model.Event
	send   chan protocol.Frame
	done   chan struct{}
}

// New creates an unconnected plugin adapter.
func New(log *logging.Logger) *Adapter {
	return &Adapter{
		log:     log,
		pending: make(map[string]chan protocol.Frame),
		events:  make(chan model.Event, 256),
		send:    make(chan protocol.Frame, 64),
		done:    make(chan struct{}),
	}
}

func (a *Adapter) Mode() model.ConnectionMode { return model.ModePlugin }

func (a *Adapter) Capabilities() map[string]bool {
	return map[string]bool{"events": true, "raw": false, "structured_commands": true}
}

// Connect dials the plugin websocket endpoint named by the server's
// plugin connection config (key "url", e.g. "ws://host:port/uwbp").
func (a *Adapter) Connect(ctx context.Context, desc *model.ServerDescriptor) error {
	cfg := desc.ConnectionConfig[model.ModePlugin]
	raw := cfg["url"]
	if raw == "" {
		return errors.InvalidRequest("plugin adapter requires a url in connection config")
	}
	normalized, _, err := httputil.NormalizeWebsocketURL(raw)
	if err != nil {
		return errors.InvalidRequest("invalid plugin url: " + err.Error())
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, normalized, nil)
	if err != nil {
		return errors.ConnectionFailed(desc.ServerID, err)
	}

	a.mu.Lock()
	a.conn = conn
	a.connected = true
	a.serverID = desc.ServerID
	a.mu.Unlock()

	go a.readPump()
	go a.writePump()
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil
	}
	a.connected = false
	select {
	case <-a.done:
	default:
		close(a.done)
	}
	if a.conn != nil {
		_ = a.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(protocol.WriteWait))
		return a.conn.Close()
	}
	return nil
}

func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *Adapter) Events() <-chan model.Event { return a.events }

func (a *Adapter) SendCommand(ctx context.Context, op string, data map[string]interface{}) (adapter.CommandResult, error) {
	if !a.IsConnected() {
		return adapter.CommandResult{}, errors.SessionClosed("plugin adapter not connected")
	}

	id := uuid.NewString()
	reply := make(chan protocol.Frame, 1)
	a.pendingMu.Lock()
	a.pending[id] = reply
	a.pendingMu.Unlock()
	defer func() {
		a.pendingMu.Lock()
		delete(a.pending, id)
		a.pendingMu.Unlock()
	}()

	frame := protocol.NewRequest(id, op, a.serverID, data)
	start := time.Now()
	select {
	case a.send <- frame:
	case <-ctx.Done():
		return adapter.CommandResult{}, errors.Timeout(op)
	}

	select {
	case f := <-reply:
		if f.Type == protocol.FrameError {
			return adapter.CommandResult{}, errors.RequestFailed(op+" failed", nil)
		}
		return adapter.CommandResult{Data: f.Data, Duration: time.Since(start)}, nil
	case <-ctx.Done():
		return adapter.CommandResult{}, errors.Timeout(op)
	}
}

// SendRaw is unsupported by the plugin adapter: all communication is
// structured U-WBP frames, so raw passthrough has nothing to carry it.
func (a *Adapter) SendRaw(ctx context.Context, raw string) (adapter.CommandResult, error) {
	return adapter.CommandResult{}, errors.InvalidRequest("plugin adapter does not support raw commands")
}

func (a *Adapter) readPump() {
	defer func() {
		a.mu.Lock()
		a.connected = false
		a.mu.Unlock()
	}()

	a.conn.SetReadDeadline(time.Now().Add(protocol.HeartbeatWait))
	a.conn.SetPongHandler(func(string) error {
		a.conn.SetReadDeadline(time.Now().Add(protocol.HeartbeatWait))
		return nil
	})

	for {
		_, raw, err := a.conn.ReadMessage()
		if err != nil {
			if a.log != nil {
				a.log.LogAdapterCommand(context.Background(), a.serverID, "plugin.read", 0, err)
			}
			return
		}

		f, err := protocol.Decode(raw)
		if err != nil {
			continue
		}

		switch f.Type {
		case protocol.FrameEvent:
			select {
			case a.events <- model.Event{EventID: f.ID, ServerID: f.ServerID, Kind: f.Op, Payload: f.Data, Timestamp: time.Now()}:
			default:
			}
		case protocol.FrameResponse, protocol.FrameError:
			a.pendingMu.Lock()
			ch, ok := a.pending[f.ID]
			a.pendingMu.Unlock()
			if ok {
				select {
				case ch <- f:
				default:
				}
			}
		}
	}
}

func (a *Adapter) writePump() {
	ticker := time.NewTicker(protocol.HeartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case f := <-a.send:
			a.conn.SetWriteDeadline(time.Now().Add(protocol.WriteWait))
			raw, err := protocol.Encode(f)
			if err != nil {
				continue
			}
			if err := a.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			a.conn.SetWriteDeadline(time.Now().Add(protocol.WriteWait))
			if err := a.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-a.done:
			return
		}
	}
}
