package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/station"
)

// wsFakeClient points the collector at a test websocket server.
type wsFakeClient struct {
	*fakeAPIClient
	url string
}

func (c *wsFakeClient) WebsocketURL() string { return c.url }

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebsocketCollector_SubscribesAndRelays(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscriptions := make(chan map[string]any, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// One pollable device means two subscription requests.
		for i := 0; i < 2; i++ {
			var req map[string]any
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			subscriptions <- req
		}

		conn.WriteJSON(map[string]any{"type": "ack", "id": "abc"})
		conn.WriteJSON(map[string]any{
			"type":          "obs_st",
			"device_id":     float64(1111),
			"serial_number": "ST-00012345",
			"obs":           []any{[]any{float64(1658414000), 0.2, 1.1}},
		})

		// Hold the connection until the collector hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	bus := newTestBus(t)
	sub := bus.Subscribe(events.TopicCollectorData)
	defer sub.Cancel()

	client := &wsFakeClient{fakeAPIClient: newFakeAPIClient(), url: wsURL(server)}
	c := NewWebsocketCollector(client, &fakeStations{stations: []station.Station{testStation()}}, bus, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	types := make(map[string]bool)
	ids := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case req := <-subscriptions:
			requestType, _ := req["type"].(string)
			types[requestType] = true
			assert.Equal(t, float64(1111), req["device_id"])
			id, _ := req["id"].(string)
			assert.NotEmpty(t, id)
			ids[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for subscription request")
		}
	}
	assert.True(t, types["listen_start"])
	assert.True(t, types["listen_rapid_start"])
	assert.Len(t, ids, 2, "request ids should be unique")

	// The ack is swallowed; only the observation comes through.
	msg := receiveMessage(t, sub)
	assert.Equal(t, "collector_websocket_obs_st", msg.Metadata.CollectorType)
	assert.Equal(t, 1111, msg.Metadata.DeviceID)
	assert.Equal(t, "ST-00012345", msg.Metadata.SerialNumber)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWebsocketCollector_ReconnectsAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connects atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connects.Add(1)
		// Drop the session right away to force a reconnect.
		conn.Close()
	}))
	defer server.Close()

	bus := newTestBus(t)
	client := &wsFakeClient{fakeAPIClient: newFakeAPIClient(), url: wsURL(server)}
	c := NewWebsocketCollector(client, &fakeStations{stations: []station.Station{testStation()}}, bus, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return connects.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
