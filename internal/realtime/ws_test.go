package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuchu-notify/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	reg := NewRegistry(fakeValidator{
		"alice-token": {UserID: "alice", Name: "Alice"},
		"bob-token":   {UserID: "bob", Name: "Bob"},
	}, nil)
	hub := NewHub(reg, nil)
	srv := httptest.NewServer(NewWSHandler(hub, []string{"*"}, nil))
	t.Cleanup(srv.Close)
	return hub, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func waitSessions(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Registry().Len() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestWS_HandshakeRejected(t *testing.T) {
	hub, srv := newWSServer(t)

	for _, token := range []string{"", "forged"} {
		header := http.Header{}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Equal(t, 0, hub.Registry().Len())
}

func TestWS_TokenFromQuery(t *testing.T) {
	hub, srv := newWSServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token=bob-token", nil)
	require.NoError(t, err)
	defer conn.Close()

	waitSessions(t, hub, 1)
	hub.EmitToUser(context.Background(), "bob", domain.EventNewNotification, map[string]string{"id": "n1"})
	f := readFrame(t, conn)
	assert.Equal(t, domain.EventNewNotification, f.Event)
}

func TestWS_BadActionKeepsConnectionOpen(t *testing.T) {
	hub, srv := newWSServer(t)
	conn := dial(t, srv, "alice-token")
	waitSessions(t, hub, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f := readFrame(t, conn)
	assert.Equal(t, domain.EventError, f.Event)

	require.NoError(t, conn.WriteJSON(Frame{Event: domain.ActionSetPresence, Data: json.RawMessage(`{"status":"asleep"}`)}))
	f = readFrame(t, conn)
	require.Equal(t, domain.EventError, f.Event)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "validation", payload.Kind)
	assert.NotContains(t, payload.Message, "bad request")

	hub.EmitToUser(context.Background(), "alice", domain.EventNotificationRead, map[string]string{"id": "n1"})
	assert.Equal(t, domain.EventNotificationRead, readFrame(t, conn).Event)
}

func TestWS_ChatBetweenClients(t *testing.T) {
	hub, srv := newWSServer(t)
	alice := dial(t, srv, "alice-token")
	bob := dial(t, srv, "bob-token")
	waitSessions(t, hub, 2)

	for _, c := range []*websocket.Conn{alice, bob} {
		require.NoError(t, c.WriteJSON(Frame{Event: domain.ActionJoinChatRoom, Data: json.RawMessage(`{"roomId":"lobby"}`)}))
	}
	require.Eventually(t, func() bool {
		return len(hub.Registry().Members(ChatChannel("lobby"))) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.WriteJSON(Frame{Event: domain.ActionSendMessage, Data: json.RawMessage(`{"roomId":"lobby","message":"hi bob"}`)}))

	for _, c := range []*websocket.Conn{bob, alice} {
		f := readFrame(t, c)
		require.Equal(t, domain.EventNewMessage, f.Event)
		var msg ChatMessage
		require.NoError(t, json.Unmarshal(f.Data, &msg))
		assert.Equal(t, "hi bob", msg.Message)
		assert.Equal(t, "Alice", msg.Sender.Name)
	}
}

func TestWS_CloseUnregisters(t *testing.T) {
	hub, srv := newWSServer(t)
	phone := dial(t, srv, "alice-token")
	laptop := dial(t, srv, "alice-token")
	waitSessions(t, hub, 2)

	require.NoError(t, phone.Close())
	waitSessions(t, hub, 1)

	f := readFrame(t, laptop)
	assert.Equal(t, domain.EventPresenceUpdate, f.Event)
	assert.Contains(t, string(f.Data), `"offline"`)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://api.example.com/v1/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, check(req("")))
	assert.True(t, check(req("https://app.example.com")))
	assert.True(t, check(req("http://api.example.com")))
	assert.False(t, check(req("https://evil.example.net")))
	assert.True(t, originChecker([]string{"*"})(req("https://evil.example.net")))
}

func TestCredential(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/ws?token=q", nil)
	assert.Equal(t, "q", credential(r))
	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", credential(r))
}
