package collector

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

const (
	websocketInitialBackoff = time.Second
	websocketMaxBackoff     = time.Minute
)

// WebsocketCollector streams observations and events over the
// WeatherFlow websocket. After connecting it asks for both the normal
// observation stream and the rapid wind stream for every pollable
// device, then relays whatever arrives.
type WebsocketCollector struct {
	base
	url      string
	stations stationSource
}

// NewWebsocketCollector builds the streaming collector.
func NewWebsocketCollector(client apiClient, stations stationSource, bus *events.Bus, logger *logrus.Entry) *WebsocketCollector {
	return &WebsocketCollector{
		base: base{
			bus:        bus,
			logger:     logger,
			moduleName: model.CollectorWebsocket.String(),
		},
		url:      client.WebsocketURL(),
		stations: stations,
	}
}

// Name implements Collector.
func (c *WebsocketCollector) Name() string { return c.moduleName }

// Run maintains the websocket session until ctx is cancelled,
// reconnecting with exponential backoff after failures.
func (c *WebsocketCollector) Run(ctx context.Context) error {
	backoff := websocketInitialBackoff
	for {
		connected, err := c.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = websocketInitialBackoff
		}
		if err != nil {
			c.errors++
			c.logger.WithError(err).WithField("retry_in", backoff.String()).Warn("websocket session ended")
		}

		if !sleepContext(ctx, backoff) {
			return nil
		}
		backoff *= 2
		if backoff > websocketMaxBackoff {
			backoff = websocketMaxBackoff
		}
	}
}

// runSession dials, subscribes, and reads until the connection drops.
// The first return value reports whether the dial itself succeeded,
// which resets the reconnect backoff.
func (c *WebsocketCollector) runSession(ctx context.Context) (bool, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Closing the connection is the only way to unblock ReadJSON.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := c.subscribeDevices(conn); err != nil {
		return true, err
	}
	c.logger.Info("websocket connected")

	for {
		var data map[string]any
		if err := conn.ReadJSON(&data); err != nil {
			return true, err
		}
		c.handleMessage(data)
	}
}

// subscribeDevices requests the observation and rapid wind streams for
// every pollable device. Each request carries a unique id the server
// echoes back in its ack.
func (c *WebsocketCollector) subscribeDevices(conn *websocket.Conn) error {
	for _, st := range c.stations.EnabledStations() {
		for _, device := range st.PollableDevices() {
			for _, requestType := range []string{"listen_start", "listen_rapid_start"} {
				request := map[string]any{
					"type":      requestType,
					"device_id": device.DeviceID,
					"id":        uuid.NewString(),
				}
				if err := conn.WriteJSON(request); err != nil {
					return err
				}
			}
			c.logger.WithFields(logrus.Fields{
				"station_id": st.StationID,
				"device_id":  device.DeviceID,
			}).Debug("subscribed device")
		}
	}
	return nil
}

func (c *WebsocketCollector) handleMessage(data map[string]any) {
	start := time.Now()

	messageType, _ := data["type"].(string)
	switch messageType {
	case "":
		c.errors++
		c.logger.Warn("discarding websocket message without a type")
		return
	case "ack", "connection_opened":
		// Protocol chatter, nothing to store.
		return
	}

	deviceID := 0
	if id, ok := data["device_id"].(float64); ok {
		deviceID = int(id)
	}
	serial, _ := data["serial_number"].(string)

	c.requests++
	c.publishMessage(&model.Message{
		Metadata: model.Metadata{
			CollectorType: model.CollectorWebsocket.WithMessageType(messageType),
			DeviceID:      deviceID,
			SerialNumber:  serial,
			CollectedAt:   time.Now().UTC(),
		},
		Data: data,
	})
	c.publishMetrics("websocket_message_received", time.Since(start))
}
