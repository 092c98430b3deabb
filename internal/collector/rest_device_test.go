package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
	"github.com/mmr-tortoise/weatherflow-collector/internal/station"
)

func newDeviceCollector(t *testing.T, client apiClient, stations stationSource, bus *events.Bus) *DeviceObservationsCollector {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.API.RateLimit = 6000 // 10ms between devices keeps the tests quick
	return NewDeviceObservationsCollector(cfg, client, stations, bus, testLogger())
}

func TestDeviceObservationsCollector_PublishesFullDocument(t *testing.T) {
	client := newFakeAPIClient()
	client.docs["device/1111"] = map[string]any{
		"device_id": float64(1111),
		"type":      "obs_st",
		"obs":       []any{[]any{float64(1658414000), 0.2, 1.1}},
	}

	bus := newTestBus(t)
	sub := bus.Subscribe(events.TopicCollectorData)
	defer sub.Cancel()

	c := newDeviceCollector(t, client, &fakeStations{stations: []station.Station{testStation()}}, bus)
	c.cycle(context.Background())

	msg := receiveMessage(t, sub)
	assert.Equal(t, "collector_rest_observations_device", msg.Metadata.CollectorType)
	assert.Equal(t, 2440, msg.Metadata.StationID)
	assert.Equal(t, 1111, msg.Metadata.DeviceID)
	assert.Equal(t, "obs_st", msg.Data["type"])
	require.NotNil(t, msg.StationInfo)
	assert.Equal(t, "Backyard", msg.StationInfo.Name)

	// Only the Tempest is polled; the hub is skipped.
	assert.Equal(t, []string{"device/1111"}, client.fetchedURLs())
}

func TestDeviceObservationsCollector_SkipsIncompleteResponses(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
	}{
		{name: "missing obs", doc: map[string]any{"device_id": float64(1111)}},
		{name: "missing device_id", doc: map[string]any{"obs": []any{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeAPIClient()
			client.docs["device/1111"] = tt.doc

			bus := newTestBus(t)
			sub := bus.Subscribe(events.TopicCollectorData)
			defer sub.Cancel()

			c := newDeviceCollector(t, client, &fakeStations{stations: []station.Station{testStation()}}, bus)
			c.cycle(context.Background())

			select {
			case payload := <-sub.C():
				t.Fatalf("unexpected message published: %v", payload)
			case <-time.After(100 * time.Millisecond):
			}
			assert.Equal(t, 0, c.requests)
		})
	}
}

func TestDeviceObservationsCollector_CountsFetchErrors(t *testing.T) {
	client := newFakeAPIClient()
	client.errs["device/1111"] = errors.New("unexpected status 503")

	bus := newTestBus(t)
	metrics := bus.Subscribe(events.TopicSystemMetrics)
	defer metrics.Cancel()

	c := newDeviceCollector(t, client, &fakeStations{stations: []station.Station{testStation()}}, bus)
	c.cycle(context.Background())

	assert.Equal(t, 1, c.errors)

	select {
	case payload := <-metrics.C():
		mp, ok := payload.(*model.MetricsPayload)
		require.True(t, ok)
		assert.Equal(t, "handle_latest_device_observation", mp.MetricName)
		assert.Equal(t, "collector_rest_observations_device", mp.ModuleName)
		assert.Equal(t, float64(1), mp.Errors)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for metrics")
	}
}

func TestDeviceObservationsCollector_StopsMidCycleOnCancel(t *testing.T) {
	client := newFakeAPIClient()
	client.docs["device/1111"] = map[string]any{"device_id": float64(1111), "obs": []any{}}

	bus := newTestBus(t)
	c := newDeviceCollector(t, client, &fakeStations{stations: []station.Station{testStation()}}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.cycle(ctx)

	assert.Empty(t, client.fetchedURLs())
}
