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

// DeviceObservationsCollector polls the latest observation set for every
// enabled device on every enabled station. Device-level observations
// carry the raw obs arrays the hub reports, which makes this the richest
// REST source and the default primary one.
type DeviceObservationsCollector struct {
	base
	client   apiClient
	stations stationSource
	interval time.Duration
	delay    time.Duration
}

// NewDeviceObservationsCollector builds the device observation poller.
func NewDeviceObservationsCollector(cfg *config.Config, client apiClient, stations stationSource, bus *events.Bus, logger *logrus.Entry) *DeviceObservationsCollector {
	return &DeviceObservationsCollector{
		base: base{
			bus:        bus,
			logger:     logger,
			moduleName: model.CollectorRestObservationsDevice.String(),
		},
		client:   client,
		stations: stations,
		interval: cfg.Collector.RestObservations.Interval,
		delay:    cfg.RequestDelay(),
	}
}

// Name implements Collector.
func (c *DeviceObservationsCollector) Name() string { return c.moduleName }

// Run polls every device each interval until ctx is cancelled.
func (c *DeviceObservationsCollector) Run(ctx context.Context) error {
	return runCycles(ctx, c.logger, c.interval, c.cycle)
}

func (c *DeviceObservationsCollector) cycle(ctx context.Context) {
	for _, st := range c.stations.EnabledStations() {
		for _, device := range st.PollableDevices() {
			if ctx.Err() != nil {
				return
			}
			c.pollDevice(ctx, &st, device)

			// Spacing requests keeps a multi-device station inside the
			// API rate limit.
			if !sleepContext(ctx, c.delay) {
				return
			}
		}
	}
}

func (c *DeviceObservationsCollector) pollDevice(ctx context.Context, st *station.Station, device station.Device) {
	start := time.Now()
	data, err := c.client.Fetch(ctx, c.client.DeviceObservationsURL(device.DeviceID), c.moduleName)
	if err != nil {
		c.errors++
		c.logger.WithError(err).WithField("device_id", device.DeviceID).Warn("device observation fetch failed")
		c.publishMetrics("handle_latest_device_observation", time.Since(start))
		return
	}

	if _, ok := data["obs"]; !ok {
		c.logger.WithField("device_id", device.DeviceID).Warn("response missing obs, skipping")
		c.publishMetrics("handle_latest_device_observation", time.Since(start))
		return
	}
	if _, ok := data["device_id"]; !ok {
		c.logger.WithField("device_id", device.DeviceID).Warn("response missing device_id, skipping")
		c.publishMetrics("handle_latest_device_observation", time.Since(start))
		return
	}

	c.requests++
	c.publishMessage(&model.Message{
		Metadata: model.Metadata{
			CollectorType: c.moduleName,
			StationID:     st.StationID,
			DeviceID:      device.DeviceID,
			CollectedAt:   time.Now().UTC(),
		},
		Data:        data,
		StationInfo: st.Info(),
	})
	c.publishMetrics("handle_latest_device_observation", time.Since(start))
}
