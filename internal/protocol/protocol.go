// Package protocol implements the U-WBP v2 wire codec: frame encoding,
// decoding, correlation-id assignment and heartbeat timing. Timeout
// constants follow the gorilla/websocket ping/pong convention used
// throughout the example pack (see teranos-QNTX/server/client.go).
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/game-hub/wbp-hub/infrastructure/errors"
)

// ProtocolVersion is the wire version this codec implements.
const ProtocolVersion = "2.0"

// MaxFrameBytes bounds a single decoded frame to guard against memory abuse.
const MaxFrameBytes = 1 << 20 // 1MiB

// WebSocket-style keepalive timing, following the gorilla/websocket
// ping/pong convention: the send period must stay comfortably under the
// peer read deadline.
const (
	WriteWait      = 10 * time.Second
	HeartbeatWait  = 60 * time.Second
	HeartbeatEvery = 15 * time.Second
)

// FrameType enumerates the top-level kinds of U-WBP v2 frames.
type FrameType string

const (
	FrameRequest   FrameType = "request"
	FrameResponse  FrameType = "response"
	FrameEvent     FrameType = "event"
	FrameHeartbeat FrameType = "heartbeat"
	FrameError     FrameType = "error"
)

// Frame is the wire representation of a single U-WBP v2 message.
type Frame struct {
	Type      FrameType              `json:"type"`
	ID        string                 `json:"id"`
	Op        string                 `json:"op,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	Version   string                 `json:"version"`
	ServerID  string                 `json:"serverId,omitempty"`
}

// NewRequest builds a request frame, stamping the current version and time.
func NewRequest(id, op, serverID string, data map[string]interface{}) Frame {
	return Frame{
		Type:      FrameRequest,
		ID:        id,
		Op:        op,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Version:   ProtocolVersion,
		ServerID:  serverID,
	}
}

// NewResponse builds a response frame correlated to the given request id.
func NewResponse(requestID, serverID string, data map[string]interface{}) Frame {
	return Frame{
		Type:      FrameResponse,
		ID:        requestID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Version:   ProtocolVersion,
		ServerID:  serverID,
	}
}

// NewEvent builds an event frame carrying a server-originated occurrence.
func NewEvent(id, kind, serverID string, data map[string]interface{}) Frame {
	return Frame{
		Type:      FrameEvent,
		ID:        id,
		Op:        kind,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Version:   ProtocolVersion,
		ServerID:  serverID,
	}
}

// NewHeartbeat builds a heartbeat frame.
func NewHeartbeat(id string) Frame {
	return Frame{
		Type:      FrameHeartbeat,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Version:   ProtocolVersion,
	}
}

// NewErrorFrame builds an error response frame for the given request id.
func NewErrorFrame(requestID, serverID string, svcErr *errors.ServiceError) Frame {
	return Frame{
		Type: FrameError,
		ID:   requestID,
		Data: map[string]interface{}{
			"code":    string(svcErr.Code),
			"message": svcErr.Message,
			"details": svcErr.Details,
		},
		Timestamp: time.Now().UnixMilli(),
		Version:   ProtocolVersion,
		ServerID:  serverID,
	}
}

// Encode serializes a frame to its wire form.
func Encode(f Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, errors.ProtocolViolation(fmt.Sprintf("failed to encode frame: %v", err))
	}
	return b, nil
}

// Decode parses a wire-form frame, validating size, version and shape.
// A violation is reported as a ServiceError carrying ErrCodeProtocolViolation,
// the signal callers use to close the connection with a protocol_violation reason.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if len(raw) > MaxFrameBytes {
		return f, errors.ProtocolViolation(fmt.Sprintf("frame exceeds %d bytes", MaxFrameBytes))
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, errors.ProtocolViolation(fmt.Sprintf("malformed frame: %v", err))
	}
	if f.Type == "" || f.ID == "" {
		return f, errors.ProtocolViolation("frame missing required type or id")
	}
	if f.Version != "" && f.Version != ProtocolVersion {
		return f, errors.ProtocolViolation(fmt.Sprintf("unsupported protocol version %q", f.Version))
	}
	return f, nil
}
