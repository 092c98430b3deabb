package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

const (
	// clientSendBuffer is the per-client outbound queue. A client this
	// far behind gets disconnected instead of stalling the broadcast.
	clientSendBuffer = 64

	// writeTimeout bounds a single frame write to a client.
	writeTimeout = 10 * time.Second
)

// upgrader accepts any origin. The feed is read-only telemetry served to
// dashboards on other hosts; no credentials ride on the connection.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsClient is one connected WebSocket consumer.
type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts every processed message to the connected WebSocket
// clients. The client's send channel is closed exactly once, by
// whichever path removes it from the client map first.
type Hub struct {
	bus    *events.Bus
	logger *logrus.Entry

	mu        sync.Mutex
	clients   map[uuid.UUID]*wsClient
	broadcast uint64
}

// NewHub builds an empty hub.
func NewHub(bus *events.Bus, logger *logrus.Entry) *Hub {
	return &Hub{
		bus:     bus,
		logger:  logger,
		clients: make(map[uuid.UUID]*wsClient),
	}
}

// Name implements Component.
func (h *Hub) Name() string { return "websocket_provider" }

// Status implements Component.
func (h *Hub) Status() (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return true, fmt.Sprintf("%d clients connected, %d messages broadcast", len(h.clients), h.broadcast)
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run broadcasts processed messages until ctx is cancelled or the bus
// closes, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	sub := h.bus.Subscribe(events.TopicProcessedData)
	defer sub.Cancel()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C():
			if !ok {
				return nil
			}
			msg, ok := payload.(*model.Message)
			if !ok {
				continue
			}
			h.publish(msg)
		}
	}
}

// publish fans one message out to every client, dropping those whose
// send buffer is full.
func (h *Hub) publish(msg *model.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Warn("failed to encode message for broadcast")
		return
	}

	var slow []*wsClient
	h.mu.Lock()
	h.broadcast++
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		delete(h.clients, client.id)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	for _, client := range slow {
		h.logger.WithField("client_id", client.id.String()).Warn("client too slow, disconnected")
	}
	if len(slow) > 0 {
		h.publishClientCount(count)
	}
}

// handleUpgrade is the gin handler for GET /ws.
func (h *Hub) handleUpgrade(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &wsClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id": client.id.String(),
		"clients":   count,
	}).Info("websocket client connected")
	h.publishClientCount(count)

	go h.writeLoop(client)
	go h.readLoop(client)
}

// writeLoop pushes queued broadcasts to one client until its send
// channel closes, then sends a close frame and drops the connection.
func (h *Hub) writeLoop(client *wsClient) {
	for data := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(client)
			client.conn.Close()
			return
		}
	}

	client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	client.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
	client.conn.Close()
}

// readLoop discards inbound frames; its job is noticing disconnects.
func (h *Hub) readLoop(client *wsClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.remove(client)
			return
		}
	}
}

// remove detaches a client if it is still attached. The map membership
// check keeps the send channel from being closed twice when the read
// and write loops race.
func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	_, present := h.clients[client.id]
	if present {
		delete(h.clients, client.id)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !present {
		return
	}
	close(client.send)

	h.logger.WithFields(logrus.Fields{
		"client_id": client.id.String(),
		"clients":   count,
	}).Info("websocket client disconnected")
	h.publishClientCount(count)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[uuid.UUID]*wsClient)
	h.mu.Unlock()

	for _, client := range clients {
		close(client.send)
	}
}

// publishClientCount reports the connection count as telemetry.
func (h *Hub) publishClientCount(count int) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(events.TopicSystemMetrics, &model.MetricsPayload{
		MetricName:  "websocket_clients",
		ModuleName:  "websocket_provider",
		ClientCount: count,
	})
}
