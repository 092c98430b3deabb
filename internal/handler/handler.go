package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// consume drains topic through fn until ctx is cancelled or the bus
// closes.
func consume(ctx context.Context, bus *events.Bus, topic events.Topic, fn func(any)) error {
	sub := bus.Subscribe(topic)
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C():
			if !ok {
				return nil
			}
			fn(payload)
		}
	}
}

// stationTags builds the tag set every weather point carries. All values
// are strings; InfluxDB tags cannot be anything else.
func stationTags(msg *model.Message) map[string]string {
	info := msg.StationInfo

	stationID := "unknown"
	switch {
	case info != nil && info.StationID > 0:
		stationID = strconv.Itoa(info.StationID)
	case msg.Metadata.StationID > 0:
		stationID = strconv.Itoa(msg.Metadata.StationID)
	}

	tags := map[string]string{
		"collector_type": msg.Metadata.CollectorType,
		"station_id":     stationID,
	}
	if info != nil {
		tags["station_name"] = info.Name
		tags["station_latitude"] = strconv.FormatFloat(info.Latitude, 'f', -1, 64)
		tags["station_longitude"] = strconv.FormatFloat(info.Longitude, 'f', -1, 64)
		tags["station_elevation"] = strconv.FormatFloat(info.Elevation, 'f', -1, 64)
		tags["station_time_zone"] = info.TimeZone
	}
	return tags
}

// popTimestamp removes the timestamp field and returns it as epoch
// seconds, falling back to now when the reading does not carry one.
func popTimestamp(fields map[string]any) int64 {
	raw, ok := fields["timestamp"]
	if !ok {
		return time.Now().Unix()
	}
	delete(fields, "timestamp")

	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return time.Now().Unix()
}

// dropNilFields removes nil values in place. Stations omit readings by
// sending JSON null and InfluxDB rejects null field values.
func dropNilFields(fields map[string]any) {
	for name, value := range fields {
		if value == nil {
			delete(fields, name)
		}
	}
}

// floatField reads a numeric field as float64.
func floatField(fields map[string]any, name string) (float64, bool) {
	switch v := fields[name].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
