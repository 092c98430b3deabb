package collector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

func newUDPCollector(t *testing.T, bus *events.Bus, address string) *UDPCollector {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Collector.UDP.ListenAddress = address
	return NewUDPCollector(cfg, nil, bus, testLogger())
}

// denyListGate blocks the serials it names and passes everything else.
type denyListGate map[string]bool

func (g denyListGate) DeviceEnabled(serial string) bool { return !g[serial] }

func TestUDPCollector_HandleDatagram(t *testing.T) {
	bus := newTestBus(t)
	sub := bus.Subscribe(events.TopicCollectorData)
	defer sub.Cancel()

	c := newUDPCollector(t, bus, "127.0.0.1:0")
	addr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: 50222}

	payload := `{"serial_number":"ST-00012345","type":"obs_st","hub_sn":"HB-00001234","obs":[[1658414000,0.2,1.1,2.4,180,3,1013.2,21.5,55,96000,3.1,310,0,0,0,0,2.66,1]],"firmware_revision":170}`
	c.handleDatagram([]byte(payload), addr)

	msg := receiveMessage(t, sub)
	assert.Equal(t, "collector_udp_obs_st", msg.Metadata.CollectorType)
	assert.Equal(t, "ST-00012345", msg.Metadata.SerialNumber)
	assert.Equal(t, "HB-00001234", msg.Data["hub_sn"])
	assert.Contains(t, msg.Data, "obs")
	assert.Equal(t, 1, c.requests)
}

func TestUDPCollector_DiscardsBadDatagrams(t *testing.T) {
	bus := newTestBus(t)
	sub := bus.Subscribe(events.TopicCollectorData)
	defer sub.Cancel()

	c := newUDPCollector(t, bus, "127.0.0.1:0")
	addr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: 50222}

	c.handleDatagram([]byte("not json"), addr)
	c.handleDatagram([]byte(`{"serial_number":"ST-00012345"}`), addr)

	select {
	case payload := <-sub.C():
		t.Fatalf("unexpected message published: %v", payload)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 0, c.requests)
	assert.Equal(t, 2, c.errors)
}

func TestUDPCollector_DropsDisabledDevices(t *testing.T) {
	bus := newTestBus(t)
	sub := bus.Subscribe(events.TopicCollectorData)
	defer sub.Cancel()

	c := newUDPCollector(t, bus, "127.0.0.1:0")
	c.gate = denyListGate{"ST-00012345": true}
	addr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: 50222}

	c.handleDatagram([]byte(`{"serial_number":"ST-00012345","type":"rapid_wind","ob":[1658414000,1.2,180]}`), addr)
	c.handleDatagram([]byte(`{"serial_number":"ST-00099999","type":"rapid_wind","ob":[1658414000,1.2,180]}`), addr)

	msg := receiveMessage(t, sub)
	assert.Equal(t, "ST-00099999", msg.Metadata.SerialNumber)

	select {
	case payload := <-sub.C():
		t.Fatalf("disabled device leaked through: %v", payload)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, c.requests)
	assert.Equal(t, 0, c.errors)
}

func TestUDPCollector_Run(t *testing.T) {
	// Reserve a port, release it, and hand it to the collector.
	probe, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	address := probe.LocalAddr().String()
	require.NoError(t, probe.Close())

	bus := newTestBus(t)
	sub := bus.Subscribe(events.TopicCollectorData)
	defer sub.Cancel()

	c := newUDPCollector(t, bus, address)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	conn, err := net.Dial("udp", address)
	require.NoError(t, err)
	defer conn.Close()

	// The listener may not be bound yet; resend until the message lands.
	datagram := []byte(`{"serial_number":"AR-00004049","type":"obs_air","hub_sn":"HB-00001234","obs":[[1658414000,1013.2,21.5,55,0,0,2.66,1]]}`)
	require.Eventually(t, func() bool {
		if _, err := conn.Write(datagram); err != nil {
			return false
		}
		select {
		case payload := <-sub.C():
			msg := payload.(*model.Message)
			return msg.Metadata.CollectorType == "collector_udp_obs_air"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
