package collector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
	"github.com/mmr-tortoise/weatherflow-collector/internal/station"
)

// StationObservationsCollector polls the consolidated latest observation
// for each enabled station. Unlike the device endpoint, the station
// endpoint returns named fields already merged across the station's
// devices, so the first obs entry is published as-is.
type StationObservationsCollector struct {
	base
	client   apiClient
	stations stationSource
	interval time.Duration
	delay    time.Duration
}

// NewStationObservationsCollector builds the station observation poller.
func NewStationObservationsCollector(cfg *config.Config, client apiClient, stations stationSource, bus *events.Bus, logger *logrus.Entry) *StationObservationsCollector {
	return &StationObservationsCollector{
		base: base{
			bus:        bus,
			logger:     logger,
			moduleName: model.CollectorRestObservationsStation.String(),
		},
		client:   client,
		stations: stations,
		interval: cfg.Collector.RestObservations.Interval,
		delay:    cfg.RequestDelay(),
	}
}

// Name implements Collector.
func (c *StationObservationsCollector) Name() string { return c.moduleName }

// Run polls every enabled station each interval until ctx is cancelled.
func (c *StationObservationsCollector) Run(ctx context.Context) error {
	return runCycles(ctx, c.logger, c.interval, c.cycle)
}

func (c *StationObservationsCollector) cycle(ctx context.Context) {
	for _, st := range c.stations.EnabledStations() {
		if ctx.Err() != nil {
			return
		}
		c.pollStation(ctx, &st)

		if !sleepContext(ctx, c.delay) {
			return
		}
	}
}

func (c *StationObservationsCollector) pollStation(ctx context.Context, st *station.Station) {
	start := time.Now()
	data, err := c.client.Fetch(ctx, c.client.StationObservationsURL(st.StationID), c.moduleName)
	if err != nil {
		c.errors++
		c.logger.WithError(err).WithField("station_id", st.StationID).Warn("station observation fetch failed")
		c.publishMetrics("handle_latest_station_observation", time.Since(start))
		return
	}

	observation, ok := firstObservation(data)
	if !ok {
		c.logger.WithField("station_id", st.StationID).Warn("response missing obs, skipping")
		c.publishMetrics("handle_latest_station_observation", time.Since(start))
		return
	}

	c.requests++
	c.publishMessage(&model.Message{
		Metadata: model.Metadata{
			CollectorType: c.moduleName,
			StationID:     st.StationID,
			CollectedAt:   time.Now().UTC(),
		},
		Data:        observation,
		StationInfo: st.Info(),
	})
	c.publishMetrics("handle_latest_station_observation", time.Since(start))
}

// firstObservation pulls the first entry out of the obs array. Station
// observations are objects with named fields, not positional arrays.
func firstObservation(data map[string]any) (map[string]any, bool) {
	obs, ok := data["obs"].([]any)
	if !ok || len(obs) == 0 {
		return nil, false
	}
	observation, ok := obs[0].(map[string]any)
	if !ok {
		return nil, false
	}
	return observation, true
}
