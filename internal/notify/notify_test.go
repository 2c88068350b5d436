package notify

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSink struct {
	notifications []Notification
}

func (s *captureSink) Notify(n Notification) {
	s.notifications = append(s.notifications, n)
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	f := NewFanout(a, b)

	n := Notification{
		Kind:       KindObjectiveCompleted,
		InstanceID: "inst-1",
		Message:    "Red completed an objective",
		At:         time.Now(),
	}
	f.Notify(n)

	require.Len(t, a.notifications, 1)
	require.Len(t, b.notifications, 1)
	assert.Equal(t, n.InstanceID, a.notifications[0].InstanceID)
	assert.Equal(t, n.Kind, b.notifications[0].Kind)
}

func dialHub(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d clients, have %d", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	ts := httptest.NewServer(hub)
	defer ts.Close()

	first := dialHub(t, ts)
	second := dialHub(t, ts)
	waitForClients(t, hub, 2)

	sent := Notification{
		Kind:       KindTeamWon,
		InstanceID: "inst-1",
		TeamID:     "team-red",
		Message:    "Red wins",
		At:         time.Now().UTC(),
	}
	hub.Notify(sent)

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var got Notification
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, KindTeamWon, got.Kind)
		assert.Equal(t, "team-red", got.TeamID)
	}
}

func TestHubRejectsClientsAfterClose(t *testing.T) {
	hub := NewHub(zap.NewNop())

	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts)
	waitForClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	// The closed hub must still answer upgrades without accepting the
	// observer; the connection ends immediately.
	late, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err == nil {
		late.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, readErr := late.ReadMessage()
		assert.Error(t, readErr)
		late.Close()
	}
	if resp != nil {
		resp.Body.Close()
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, readErr := conn.ReadMessage()
	assert.Error(t, readErr)
}
