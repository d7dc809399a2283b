package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/game-hub/wbp-hub/infrastructure/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig := NewRequest("req-1", "server.broadcast", "srv-1", map[string]interface{}{"message": "hi"})

	raw, err := Encode(orig)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, orig.Type, decoded.Type)
	assert.Equal(t, orig.ID, decoded.ID)
	assert.Equal(t, orig.Op, decoded.Op)
	assert.Equal(t, orig.ServerID, decoded.ServerID)
	assert.Equal(t, orig.Version, decoded.Version)
	assert.Equal(t, orig.Data["message"], decoded.Data["message"])
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	huge := make([]byte, MaxFrameBytes+1)
	_, err := Decode(huge)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProtocolViolation, errors.Code(err))
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProtocolViolation, errors.Code(err))
}

func TestDecodeRejectsMissingFields(t *testing.T) {
	_, err := Decode([]byte(`{"data":{}}`))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProtocolViolation, errors.Code(err))
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	raw := []byte(`{"type":"request","id":"r1","version":"1.0"}`)
	_, err := Decode(raw)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "version"))
}

func TestNewResponseCorrelatesToRequestID(t *testing.T) {
	req := NewRequest("req-42", "players.list", "srv-1", nil)
	resp := NewResponse(req.ID, req.ServerID, map[string]interface{}{"players": []string{}})
	assert.Equal(t, req.ID, resp.ID)
	assert.Equal(t, FrameResponse, resp.Type)
}

func TestNewEventHasKindAndServer(t *testing.T) {
	evt := NewEvent("evt-1", "player.join", "srv-2", map[string]interface{}{"playerId": "u1"})
	assert.Equal(t, FrameEvent, evt.Type)
	assert.Equal(t, "player.join", evt.Op)
	assert.Equal(t, "srv-2", evt.ServerID)
}

func TestNewErrorFrameCarriesCode(t *testing.T) {
	svcErr := errors.UnknownOperation("server.nonexistent")
	f := NewErrorFrame("req-9", "srv-1", svcErr)
	assert.Equal(t, FrameError, f.Type)
	assert.Equal(t, string(errors.ErrCodeUnknownOperation), f.Data["code"])
}

func TestHeartbeatTimingIsSound(t *testing.T) {
	assert.Less(t, HeartbeatEvery, HeartbeatWait)
}
