package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialPushService(t *testing.T, push *WebSocketPushService) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		push.HandleUpgrade(w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The handshake completes before the server registers the connection;
	// wait for the registry entry so the broadcast below cannot race it.
	require.Eventually(t, func() bool {
		push.mu.RLock()
		defer push.mu.RUnlock()
		return len(push.connections) == 1
	}, time.Second, time.Millisecond)
	return conn
}

func readPush(t *testing.T, conn *websocket.Conn) PushMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var message PushMessage
	require.NoError(t, json.Unmarshal(payload, &message))
	return message
}

func TestPushServiceBroadcastsSessionLifecycle(t *testing.T) {
	push := NewWebSocketPushService(quietLogger())
	defer push.Close()
	conn := dialPushService(t, push)

	account := common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	push.OnSessionConnected(account)
	message := readPush(t, conn)
	assert.Equal(t, "session", message.Type)

	data, ok := message.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, account.Hex(), data["account"])
	assert.Equal(t, true, data["connected"])

	push.OnSessionDisconnected(account)
	message = readPush(t, conn)
	assert.Equal(t, "session", message.Type)
	data, ok = message.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, data["connected"])
}

func TestPushServiceBroadcastReachesClient(t *testing.T) {
	push := NewWebSocketPushService(quietLogger())
	defer push.Close()
	conn := dialPushService(t, push)

	push.Broadcast("protocol_state", map[string]string{"collateralRatio": "1000000"})
	message := readPush(t, conn)
	assert.Equal(t, "protocol_state", message.Type)
	assert.NotEmpty(t, message.MessageID)
}
