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

// ForecastsCollector polls the hourly and daily forecast document for
// each enabled station. Forecast documents bypass the current conditions
// handler and land in their own measurements.
type ForecastsCollector struct {
	base
	client   apiClient
	stations stationSource
	interval time.Duration
	delay    time.Duration
}

// NewForecastsCollector builds the forecast poller.
func NewForecastsCollector(cfg *config.Config, client apiClient, stations stationSource, bus *events.Bus, logger *logrus.Entry) *ForecastsCollector {
	return &ForecastsCollector{
		base: base{
			bus:        bus,
			logger:     logger,
			moduleName: model.CollectorRestForecasts.String(),
		},
		client:   client,
		stations: stations,
		interval: cfg.Collector.RestForecasts.Interval,
		delay:    cfg.RequestDelay(),
	}
}

// Name implements Collector.
func (c *ForecastsCollector) Name() string { return c.moduleName }

// Run polls forecasts each interval until ctx is cancelled.
func (c *ForecastsCollector) Run(ctx context.Context) error {
	return runCycles(ctx, c.logger, c.interval, c.cycle)
}

func (c *ForecastsCollector) cycle(ctx context.Context) {
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

func (c *ForecastsCollector) pollStation(ctx context.Context, st *station.Station) {
	start := time.Now()
	data, err := c.client.Fetch(ctx, c.client.ForecastURL(st.StationID), c.moduleName)
	if err != nil {
		c.errors++
		c.logger.WithError(err).WithField("station_id", st.StationID).Warn("forecast fetch failed")
		c.publishMetrics("handle_forecast", time.Since(start))
		return
	}

	if _, ok := data["forecast"]; !ok {
		c.logger.WithField("station_id", st.StationID).Warn("response missing forecast, skipping")
		c.publishMetrics("handle_forecast", time.Since(start))
		return
	}

	c.requests++
	c.publishMessage(&model.Message{
		Metadata: model.Metadata{
			CollectorType: c.moduleName,
			StationID:     st.StationID,
			CollectedAt:   time.Now().UTC(),
		},
		Data:        data,
		StationInfo: st.Info(),
	})
	c.publishMetrics("handle_forecast", time.Since(start))
}
