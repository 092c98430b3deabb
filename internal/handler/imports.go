package handler

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
	"github.com/mmr-tortoise/weatherflow-collector/internal/weather"
)

// Import converts historical day documents into batches of
// weatherflow_current_conditions points. Batches skip the live path's
// timestamp clamping, which is what lets years-old readings keep their
// real timestamps.
type Import struct {
	bus    *events.Bus
	logger *logrus.Entry

	handled int
	skipped int
}

// NewImport builds the backfill handler.
func NewImport(bus *events.Bus, logger *logrus.Entry) *Import {
	return &Import{bus: bus, logger: logger}
}

// Run consumes processed messages until ctx is cancelled.
func (h *Import) Run(ctx context.Context) error {
	return consume(ctx, h.bus, events.TopicProcessedData, h.handle)
}

func (h *Import) handle(payload any) {
	msg, ok := payload.(*model.Message)
	if !ok || !strings.Contains(msg.Metadata.CollectorType, "rest_import") {
		return
	}
	if msg.StationInfo == nil {
		h.skipped++
		h.logger.Debug("no station metadata, skipping import day")
		return
	}

	obs, ok := msg.Data["obs"].([]any)
	if !ok || len(obs) == 0 {
		h.skipped++
		return
	}

	messageType, _ := msg.Data["type"].(string)
	tags := stationTags(msg)
	points := make([]model.BatchPoint, 0, len(obs))

	for _, raw := range obs {
		values, ok := raw.([]any)
		if !ok {
			continue
		}

		fields := weather.NormalizeFields(positionalFields(values, messageType))
		if len(fields) == 0 {
			continue
		}
		deriveFields(fields, msg.StationInfo)

		timestamp := popTimestamp(fields)
		dropNilFields(fields)
		if len(fields) == 0 {
			continue
		}

		points = append(points, model.BatchPoint{
			Measurement: currentConditionsMeasurement,
			Tags:        tags,
			Fields:      fields,
			Timestamp:   timestamp,
		})
	}

	if len(points) == 0 {
		h.skipped++
		return
	}

	h.handled++
	h.logger.WithFields(logrus.Fields{
		"station_id": tags["station_id"],
		"points":     len(points),
	}).Debug("import batch ready")
	h.bus.Publish(events.TopicStorageInfluxDB, model.NewBatchPayload(points))
}
