package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"slidecast/pkg/interfaces"
	"slidecast/pkg/protocol"
)

type recordedDispatch struct {
	ConnID string
	Event  string
}

type fakeDispatcher struct {
	mu          sync.Mutex
	dispatches  []recordedDispatch
	disconnects []string
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, conn interfaces.Conn, env protocol.Envelope) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatches = append(d.dispatches, recordedDispatch{ConnID: conn.ID(), Event: env.Event})
}

func (d *fakeDispatcher) Disconnect(conn interfaces.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects = append(d.disconnects, conn.ID())
}

func (d *fakeDispatcher) dispatched() []recordedDispatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]recordedDispatch(nil), d.dispatches...)
}

func (d *fakeDispatcher) disconnected() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.disconnects...)
}

func testOptions() Options {
	return Options{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Second,
		PingInterval: time.Second,
		SendBuffer:   16,
		MaxFrameSize: 1 << 20,
	}
}

func dialTestServer(t *testing.T, dispatcher Dispatcher) *websocket.Conn {
	t.Helper()
	handler := NewHandler(dispatcher, testOptions(), zap.NewNop())
	server := httptest.NewServer(http.HandlerFunc(handler.Serve))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestInboundEnvelopesAreDispatchedInOrder(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	client := dialTestServer(t, dispatcher)

	for _, event := range []string{protocol.EventJoinGame, protocol.EventChangeMode, protocol.EventLeaveGame} {
		frame, err := json.Marshal(protocol.Envelope{Event: event, Data: json.RawMessage(`{}`)})
		require.NoError(t, err)
		require.NoError(t, client.WriteMessage(websocket.TextMessage, frame))
	}

	require.Eventually(t, func() bool {
		return len(dispatcher.dispatched()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	got := dispatcher.dispatched()
	assert.Equal(t, protocol.EventJoinGame, got[0].Event)
	assert.Equal(t, protocol.EventChangeMode, got[1].Event)
	assert.Equal(t, protocol.EventLeaveGame, got[2].Event)
	// All frames from one socket share one connection identity.
	assert.Equal(t, got[0].ConnID, got[1].ConnID)
	assert.Equal(t, got[1].ConnID, got[2].ConnID)
}

func TestMalformedEnvelopeGetsErrorEvent(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	client := dialTestServer(t, dispatcher)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{not json`)))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := client.ReadMessage()
	require.NoError(t, err)

	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, protocol.EventError, env.Event)

	var errEvent protocol.ErrorEvent
	require.NoError(t, json.Unmarshal(env.Data, &errEvent))
	assert.Equal(t, protocol.CodeInvalidPayload, errEvent.Code)
	assert.Empty(t, dispatcher.dispatched())
}

func TestClientCloseTriggersDisconnect(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	client := dialTestServer(t, dispatcher)

	require.NoError(t, client.Close())

	require.Eventually(t, func() bool {
		return len(dispatcher.disconnected()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
