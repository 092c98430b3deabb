package collector

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
	"github.com/mmr-tortoise/weatherflow-collector/internal/station"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("module", "test")
}

func newTestBus(t *testing.T) *events.Bus {
	t.Helper()
	bus := events.NewBus(64, testLogger())
	t.Cleanup(bus.Close)
	return bus
}

// receiveMessage waits for one pipeline message on the subscription.
func receiveMessage(t *testing.T, sub *events.Subscription) *model.Message {
	t.Helper()
	select {
	case payload := <-sub.C():
		msg, ok := payload.(*model.Message)
		require.True(t, ok, "expected *model.Message, got %T", payload)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

// fakeAPIClient serves canned documents keyed by URL and records every
// fetch in order.
type fakeAPIClient struct {
	mu      sync.Mutex
	docs    map[string]map[string]any
	errs    map[string]error
	fetched []string
}

func newFakeAPIClient() *fakeAPIClient {
	return &fakeAPIClient{
		docs: make(map[string]map[string]any),
		errs: make(map[string]error),
	}
}

func (f *fakeAPIClient) Fetch(_ context.Context, rawURL, _ string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetched = append(f.fetched, rawURL)
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	doc, ok := f.docs[rawURL]
	if !ok {
		return nil, fmt.Errorf("no canned document for %s", rawURL)
	}
	return doc, nil
}

func (f *fakeAPIClient) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func (f *fakeAPIClient) DeviceObservationsURL(deviceID int) string {
	return fmt.Sprintf("device/%d", deviceID)
}

func (f *fakeAPIClient) StationObservationsURL(stationID int) string {
	return fmt.Sprintf("station/%d", stationID)
}

func (f *fakeAPIClient) ForecastURL(stationID int) string {
	return fmt.Sprintf("forecast/%d", stationID)
}

func (f *fakeAPIClient) StationStatsURL(stationID int) string {
	return fmt.Sprintf("stats/%d", stationID)
}

func (f *fakeAPIClient) DayImportURL(stationID int, dayStart int64) string {
	return fmt.Sprintf("import/%d/%d", stationID, dayStart)
}

func (f *fakeAPIClient) WebsocketURL() string {
	return "ws://unused"
}

type fakeStations struct {
	stations []station.Station
}

func (f *fakeStations) EnabledStations() []station.Station {
	return f.stations
}

func testStation() station.Station {
	return station.Station{
		StationID: 2440,
		Name:      "Backyard",
		Latitude:  33.654,
		Longitude: -117.812,
		Elevation: 70,
		TimeZone:  "America/Los_Angeles",
		Enabled:   true,
		Devices: []station.Device{
			{DeviceID: 1110, SerialNumber: "HB-00001234", DeviceType: station.DeviceTypeHub, Enabled: true},
			{DeviceID: 1111, SerialNumber: "ST-00012345", DeviceType: station.DeviceTypeTempest, Enabled: true},
		},
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	assert.True(t, sleepContext(ctx, 0))
	assert.True(t, sleepContext(ctx, time.Millisecond))

	cancel()
	start := time.Now()
	assert.False(t, sleepContext(ctx, 5*time.Second))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunCycles_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cycles := 0
	err := runCycles(ctx, testLogger(), time.Millisecond, func(context.Context) {
		cycles++
		if cycles == 3 {
			cancel()
		}
	})

	require.NoError(t, err)
	assert.Equal(t, 3, cycles)
}

func TestRunCycles_PadsToInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var stamps []time.Time
	err := runCycles(ctx, testLogger(), 50*time.Millisecond, func(context.Context) {
		stamps = append(stamps, time.Now())
		if len(stamps) == 2 {
			cancel()
		}
	})

	require.NoError(t, err)
	require.Len(t, stamps, 2)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 45*time.Millisecond)
}
