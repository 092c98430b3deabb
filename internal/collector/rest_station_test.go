package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/station"
)

func newStationCollector(t *testing.T, client apiClient, stations stationSource, bus *events.Bus) *StationObservationsCollector {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.API.RateLimit = 6000
	return NewStationObservationsCollector(cfg, client, stations, bus, testLogger())
}

func TestStationObservationsCollector_PublishesFirstObservation(t *testing.T) {
	client := newFakeAPIClient()
	client.docs["station/2440"] = map[string]any{
		"station_id": float64(2440),
		"obs": []any{
			map[string]any{
				"timestamp":         float64(1658414000),
				"air_temperature":   21.5,
				"relative_humidity": float64(55),
			},
		},
	}

	bus := newTestBus(t)
	sub := bus.Subscribe(events.TopicCollectorData)
	defer sub.Cancel()

	c := newStationCollector(t, client, &fakeStations{stations: []station.Station{testStation()}}, bus)
	c.cycle(context.Background())

	msg := receiveMessage(t, sub)
	assert.Equal(t, "collector_rest_observations_station", msg.Metadata.CollectorType)
	assert.Equal(t, 2440, msg.Metadata.StationID)

	// The observation itself is the payload, not the wrapping document.
	assert.Equal(t, 21.5, msg.Data["air_temperature"])
	assert.NotContains(t, msg.Data, "station_id")
}

func TestStationObservationsCollector_SkipsEmptyObservations(t *testing.T) {
	client := newFakeAPIClient()
	client.docs["station/2440"] = map[string]any{
		"station_id": float64(2440),
		"obs":        []any{},
	}

	bus := newTestBus(t)
	sub := bus.Subscribe(events.TopicCollectorData)
	defer sub.Cancel()

	c := newStationCollector(t, client, &fakeStations{stations: []station.Station{testStation()}}, bus)
	c.cycle(context.Background())

	select {
	case payload := <-sub.C():
		t.Fatalf("unexpected message published: %v", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFirstObservation(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		ok   bool
	}{
		{name: "object entry", data: map[string]any{"obs": []any{map[string]any{"a": 1.0}}}, ok: true},
		{name: "missing obs", data: map[string]any{}, ok: false},
		{name: "empty obs", data: map[string]any{"obs": []any{}}, ok: false},
		{name: "positional entry", data: map[string]any{"obs": []any{[]any{1.0, 2.0}}}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, ok := firstObservation(tt.data)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.NotNil(t, obs)
			}
		})
	}
}
