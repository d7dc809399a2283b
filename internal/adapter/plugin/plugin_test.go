package plugin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/game-hub/wbp-hub/infrastructure/testutil"
	"github.com/game-hub/wbp-hub/internal/model"
	"github.com/game-hub/wbp-hub/internal/protocol"
)

func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return testutil.NewHTTPTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f, err := protocol.Decode(raw)
			if err != nil {
				continue
			}
			resp := protocol.NewResponse(f.ID, f.ServerID, map[string]interface{}{"ok": true})
			out, _ := protocol.Encode(resp)
			_ = conn.WriteMessage(websocket.TextMessage, out)
		}
	}))
}

func TestPluginAdapterConnectAndSendCommand(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	a := New(nil)
	desc := &model.ServerDescriptor{
		ServerID: "srv-1",
		ConnectionConfig: map[model.ConnectionMode]map[string]string{
			model.ModePlugin: {"url": "ws" + strings.TrimPrefix(srv.URL, "http")},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, a.Connect(ctx, desc))
	assert.True(t, a.IsConnected())
	assert.Equal(t, model.ModePlugin, a.Mode())

	result, err := a.SendCommand(ctx, "players.list", nil)
	require.NoError(t, err)
	assert.Equal(t, true, result.Data["ok"])

	require.NoError(t, a.Disconnect(ctx))
}

func TestPluginAdapterRejectsMissingURL(t *testing.T) {
	a := New(nil)
	desc := &model.ServerDescriptor{ServerID: "srv-2"}
	err := a.Connect(context.Background(), desc)
	require.Error(t, err)
}

func TestPluginAdapterSendRawUnsupported(t *testing.T) {
	a := New(nil)
	_, err := a.SendRaw(context.Background(), "anything")
	require.Error(t, err)
}
