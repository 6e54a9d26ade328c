package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoCSMS upgrades every request and answers Heartbeat calls with a fixed
// CALLRESULT, mirroring a minimal CSMS counterpart for Client.Call tests.
func echoCSMS(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{Subprotocols: []string{subprotocol}}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var raw []json.RawMessage
			require.NoError(t, json.Unmarshal(data, &raw))

			var uniqueID string
			require.NoError(t, json.Unmarshal(raw[1], &uniqueID))

			resp, _ := encodeCallResult(uniqueID, map[string]string{"currentTime": "2026-01-08T10:00:00Z"})
			conn.WriteMessage(websocket.TextMessage, resp)
		}
	}))
}

func TestClient_DialAndCall(t *testing.T) {
	server := echoCSMS(t)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, err := Dial(context.Background(), wsURL, "ocpp", "PY-SIM-0001", time.Second, 0, nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Serve(ctx, nil)

	var result struct {
		CurrentTime string `json:"currentTime"`
	}
	callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
	defer callCancel()
	err = client.Call(callCtx, "Heartbeat", map[string]interface{}{}, &result)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-08T10:00:00Z", result.CurrentTime)
}

func TestClient_CallTimeoutWhenNoResponse(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: []string{subprotocol}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		// never responds
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, err := Dial(context.Background(), wsURL, "ocpp", "PY-SIM-0002", time.Second, 0, nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Serve(ctx, nil)

	callCtx, callCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer callCancel()
	err = client.Call(callCtx, "Heartbeat", map[string]interface{}{}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ConfiguredCallTimeoutWhenNoResponse(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: []string{subprotocol}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		// never responds
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, err := Dial(context.Background(), wsURL, "ocpp", "PY-SIM-0004", time.Second, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Serve(ctx, nil)

	err = client.Call(context.Background(), "Heartbeat", map[string]interface{}{}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_InboundCallDispatchedToHandler(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: []string{subprotocol}}
	responses := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		frame, _ := encodeCall("srv-1", "Reset", map[string]string{"type": "Soft"})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		responses <- data
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, err := Dial(context.Background(), wsURL, "ocpp", "PY-SIM-0003", time.Second, 0, nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, action string, payload json.RawMessage) (interface{}, *CallError) {
		assert.Equal(t, "Reset", action)
		return map[string]string{"status": "Accepted"}, nil
	}
	go client.Serve(ctx, handler)

	select {
	case data := <-responses:
		frame, err := decodeFrame(data)
		require.NoError(t, err)
		assert.Equal(t, callResultMessageType, frame.messageType)
		assert.Equal(t, "srv-1", frame.uniqueID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}
