package handler

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
	"github.com/mmr-tortoise/weatherflow-collector/internal/weather"
)

// Forecast measurements, one per horizon.
const (
	forecastHourlyMeasurement = "weatherflow_forecast_hourly"
	forecastDailyMeasurement  = "weatherflow_forecast_daily"
)

// Forecast converts forecast documents into batches of hourly and daily
// points. Every refresh rewrites the same future timestamps, so the
// series always reflects the latest model run.
type Forecast struct {
	bus    *events.Bus
	logger *logrus.Entry

	handled int
	skipped int
}

// NewForecast builds the forecast handler.
func NewForecast(bus *events.Bus, logger *logrus.Entry) *Forecast {
	return &Forecast{bus: bus, logger: logger}
}

// Run consumes processed messages until ctx is cancelled.
func (h *Forecast) Run(ctx context.Context) error {
	return consume(ctx, h.bus, events.TopicProcessedData, h.handle)
}

func (h *Forecast) handle(payload any) {
	msg, ok := payload.(*model.Message)
	if !ok || !msg.IsForecast() {
		return
	}
	if msg.StationInfo == nil {
		h.skipped++
		h.logger.Debug("no station metadata, skipping forecast")
		return
	}

	forecast, ok := msg.Data["forecast"].(map[string]any)
	if !ok {
		h.skipped++
		h.logger.Warn("forecast document missing forecast block, skipping")
		return
	}

	tags := stationTags(msg)
	var points []model.BatchPoint

	if hourly, ok := forecast["hourly"].([]any); ok {
		points = append(points, forecastPoints(hourly, forecastHourlyMeasurement, "time", tags)...)
	}
	if daily, ok := forecast["daily"].([]any); ok {
		points = append(points, forecastPoints(daily, forecastDailyMeasurement, "day_start_local", tags)...)
	}

	if len(points) == 0 {
		h.skipped++
		return
	}

	h.handled++
	h.logger.WithFields(logrus.Fields{
		"station_id": tags["station_id"],
		"points":     len(points),
	}).Debug("forecast batch ready")
	h.bus.Publish(events.TopicStorageInfluxDB, model.NewBatchPayload(points))
}

// forecastPoints flattens one forecast horizon into batch points. Each
// entry's scalar fields survive; timeKey names the entry field holding
// the point's epoch timestamp.
func forecastPoints(entries []any, measurement, timeKey string, tags map[string]string) []model.BatchPoint {
	points := make([]model.BatchPoint, 0, len(entries))

	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		fields := make(map[string]any, len(entry))
		for name, value := range entry {
			switch value.(type) {
			case string, bool, float64, int, int64:
				fields[name] = value
			}
		}
		fields = weather.NormalizeFields(fields)

		var timestamp int64
		if at, ok := floatField(fields, timeKey); ok {
			timestamp = int64(at)
			delete(fields, timeKey)
		}

		dropNilFields(fields)
		if len(fields) == 0 {
			continue
		}

		points = append(points, model.BatchPoint{
			Measurement: measurement,
			Tags:        tags,
			Fields:      fields,
			Timestamp:   timestamp,
		})
	}
	return points
}
