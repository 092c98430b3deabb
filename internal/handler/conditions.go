package handler

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
	"github.com/mmr-tortoise/weatherflow-collector/internal/weather"
)

// currentConditionsMeasurement holds the live observation series.
const currentConditionsMeasurement = "weatherflow_current_conditions"

// Positional layouts of the hub observation arrays. The Tempest reports
// everything in one obs_st array; the legacy Air and Sky units split the
// same readings across two shorter layouts.
var (
	tempestObservationFields = []string{
		"timestamp", "wind_lull", "wind_avg", "wind_gust", "wind_direction",
		"wind_sample_interval", "station_pressure", "air_temperature",
		"relative_humidity", "illuminance", "uv", "solar_radiation",
		"rain_accumulated", "precipitation_type",
		"lightning_strike_avg_distance", "lightning_strike_count",
		"battery", "report_interval",
	}
	airObservationFields = []string{
		"timestamp", "station_pressure", "air_temperature",
		"relative_humidity", "lightning_strike_count",
		"lightning_strike_avg_distance", "battery", "report_interval",
	}
	skyObservationFields = []string{
		"timestamp", "illuminance", "uv", "rain_accumulated", "wind_lull",
		"wind_avg", "wind_gust", "wind_direction", "battery",
		"report_interval", "solar_radiation",
		"local_daily_rain_accumulation", "precipitation_type",
	}
)

// envelopeKeys are document plumbing, not readings; the scalar branch
// leaves them out.
var envelopeKeys = map[string]bool{
	"type":          true,
	"hub_sn":        true,
	"serial_number": true,
	"device_id":     true,
	"obs":           true,
	"ob":            true,
}

// CurrentConditions converts live observations into single
// weatherflow_current_conditions points, adding the calculated_* fields
// where the inputs allow.
type CurrentConditions struct {
	bus    *events.Bus
	logger *logrus.Entry

	handled int
	skipped int
}

// NewCurrentConditions builds the live conditions handler.
func NewCurrentConditions(bus *events.Bus, logger *logrus.Entry) *CurrentConditions {
	return &CurrentConditions{bus: bus, logger: logger}
}

// Run consumes processed messages until ctx is cancelled.
func (h *CurrentConditions) Run(ctx context.Context) error {
	return consume(ctx, h.bus, events.TopicProcessedData, h.handle)
}

func (h *CurrentConditions) handle(payload any) {
	msg, ok := payload.(*model.Message)
	if !ok {
		return
	}

	// Forecasts and backfills have their own handlers and measurements.
	if msg.IsForecast() || strings.Contains(msg.Metadata.CollectorType, "rest_import") {
		return
	}
	if msg.StationInfo == nil {
		h.skipped++
		h.logger.WithField("collector_type", msg.Metadata.CollectorType).
			Debug("no station metadata, skipping")
		return
	}

	fields := weather.NormalizeFields(extractFields(msg.Data))
	if len(fields) == 0 {
		// Rapid wind and event messages carry nothing storable here.
		h.skipped++
		return
	}

	deriveFields(fields, msg.StationInfo)

	tags := stationTags(msg)
	timestamp := popTimestamp(fields)
	dropNilFields(fields)
	if len(fields) == 0 {
		h.skipped++
		return
	}

	h.handled++
	h.bus.Publish(events.TopicStorageInfluxDB,
		model.NewSinglePayload(currentConditionsMeasurement, tags, fields, timestamp))
}

// extractFields pulls named readings out of a message document. Documents
// with a positional obs array go through the layout tables; everything
// else contributes its top-level scalars.
func extractFields(data map[string]any) map[string]any {
	if obs, ok := data["obs"].([]any); ok && len(obs) > 0 {
		if positional, ok := obs[0].([]any); ok {
			messageType, _ := data["type"].(string)
			return positionalFields(positional, messageType)
		}
	}

	fields := make(map[string]any)
	for name, value := range data {
		if envelopeKeys[name] {
			continue
		}
		switch value.(type) {
		case string, bool, float64, int, int64, nil:
			fields[name] = value
		}
	}
	return fields
}

// positionalFields maps a positional observation array onto field names.
// The layout comes from the message type when present, the array length
// otherwise. Unknown layouts map to nothing.
func positionalFields(values []any, messageType string) map[string]any {
	var names []string
	switch {
	case strings.Contains(messageType, "obs_st") || len(values) >= len(tempestObservationFields):
		names = tempestObservationFields
	case strings.Contains(messageType, "obs_sky") || len(values) == len(skyObservationFields):
		names = skyObservationFields
	case strings.Contains(messageType, "obs_air") || len(values) == len(airObservationFields):
		names = airObservationFields
	default:
		return map[string]any{}
	}

	fields := make(map[string]any, len(names))
	for i, name := range names {
		if i >= len(values) {
			break
		}
		fields[name] = values[i]
	}
	return fields
}

// deriveFields merges the calculated_* metrics into fields when the
// reading carries temperature and humidity.
func deriveFields(fields map[string]any, info *model.StationInfo) {
	temperature, ok := floatField(fields, "air_temperature")
	if !ok {
		return
	}
	humidity, ok := floatField(fields, "relative_humidity")
	if !ok {
		return
	}

	in := weather.MetricInputs{
		AirTemperature:   temperature,
		RelativeHumidity: humidity,
		Elevation:        info.Elevation,
	}
	if pressure, ok := floatField(fields, "station_pressure"); ok {
		in.StationPressure = &pressure
	}
	if wind, ok := floatField(fields, "wind_avg"); ok {
		in.WindAvg = &wind
	}

	for name, value := range weather.DeriveMetrics(in) {
		fields[name] = value
	}
}
