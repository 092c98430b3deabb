package collector

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// udpReadBufferSize comfortably holds the largest hub datagram; obs_st
// broadcasts run a few hundred bytes.
const udpReadBufferSize = 2048

// deviceGate decides whether datagrams from a given serial number are
// worth publishing. The station registry implements it.
type deviceGate interface {
	DeviceEnabled(serial string) bool
}

// UDPCollector listens for the JSON datagrams a Tempest hub broadcasts
// on the LAN. This is the only collector that works without an API token
// and it keeps reporting through cloud outages.
type UDPCollector struct {
	base
	listenAddress string
	gate          deviceGate
}

// NewUDPCollector builds the LAN broadcast listener. gate may be nil,
// in which case every datagram passes.
func NewUDPCollector(cfg *config.Config, gate deviceGate, bus *events.Bus, logger *logrus.Entry) *UDPCollector {
	return &UDPCollector{
		base: base{
			bus:        bus,
			logger:     logger,
			moduleName: model.CollectorUDP.String(),
		},
		listenAddress: cfg.Collector.UDP.ListenAddress,
		gate:          gate,
	}
}

// Name implements Collector.
func (c *UDPCollector) Name() string { return c.moduleName }

// Run binds the UDP socket and decodes datagrams until ctx is cancelled.
func (c *UDPCollector) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", c.listenAddress)
	if err != nil {
		return err
	}

	// Closing the socket is the only way to unblock ReadFrom.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	c.logger.WithField("address", c.listenAddress).Info("listening for hub broadcasts")

	buf := make([]byte, udpReadBufferSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		c.handleDatagram(buf[:n], addr)
	}
}

func (c *UDPCollector) handleDatagram(payload []byte, addr net.Addr) {
	start := time.Now()

	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		c.errors++
		c.logger.WithField("source", addr.String()).Warn("discarding unparseable datagram")
		c.publishMetrics("udp_message_received", time.Since(start))
		return
	}

	messageType, _ := data["type"].(string)
	if messageType == "" {
		c.errors++
		c.logger.WithField("source", addr.String()).Warn("discarding datagram without a type")
		c.publishMetrics("udp_message_received", time.Since(start))
		return
	}

	serial, _ := data["serial_number"].(string)
	if serial != "" && c.gate != nil && !c.gate.DeviceEnabled(serial) {
		c.logger.WithField("serial", serial).Debug("dropping datagram from disabled device")
		c.publishMetrics("udp_message_received", time.Since(start))
		return
	}

	msg := &model.Message{
		Metadata: model.Metadata{
			CollectorType: model.CollectorUDP.WithMessageType(messageType),
			SerialNumber:  serial,
			CollectedAt:   time.Now().UTC(),
		},
		Data: data,
	}

	c.requests++
	c.publishMessage(msg)
	c.publishMetrics("udp_message_received", time.Since(start))

	c.logger.WithFields(logrus.Fields{
		"type":   messageType,
		"serial": serial,
	}).Debug("datagram published")
}
