package weather

import (
	"strconv"
	"strings"
)

// fieldKind is the canonical storage type of a known observation field.
type fieldKind int

const (
	kindFloat fieldKind = iota
	kindInt
)

// fieldKinds maps every known observation field to its canonical type.
// Fields absent from the map pass through untouched; stations and
// firmware revisions disagree on types often enough that writing mixed
// types into one InfluxDB field would reject points.
var fieldKinds = map[string]fieldKind{
	"air_temperature":                        kindFloat,
	"daily_precip_sum":                       kindFloat,
	"firmware_revision":                      kindInt,
	"illuminance":                            kindInt,
	"lightning_strike_avg_distance":          kindFloat,
	"lightning_strike_count":                 kindInt,
	"local_daily_rain_accumulation":          kindFloat,
	"local_daily_rain_accumulation_final":    kindFloat,
	"local_precipitation_accumulation_final": kindFloat,
	"local_precipitation_accumulation_today": kindFloat,
	"precip":                                 kindFloat,
	"precip_accum_local_day":                 kindFloat,
	"precip_accum_local_yesterday":           kindFloat,
	"precipitation_analysis_type":            kindInt,
	"precipitation_type":                     kindInt,
	"rain_accumulated":                       kindFloat,
	"rain_accumulated_final":                 kindFloat,
	"relative_humidity":                      kindFloat,
	"report_interval":                        kindInt,
	"solar_radiation":                        kindInt,
	"station_pressure":                       kindFloat,
	"timestamp":                              kindInt,
	"uv":                                     kindFloat,
	"wind_avg":                               kindFloat,
	"wind_direction":                         kindInt,
	"wind_gust":                              kindFloat,
	"wind_lull":                              kindFloat,
	"wind_sample_interval":                   kindInt,
}

// NormalizeFields returns a copy of fields with every known field coerced
// to its canonical type: float64 for measurements, int64 for counters and
// enumerations. Values that cannot be coerced are dropped. Unknown fields
// are carried over unchanged.
func NormalizeFields(fields map[string]any) map[string]any {
	normalized := make(map[string]any, len(fields))

	for name, value := range fields {
		kind, known := fieldKinds[name]
		if !known {
			normalized[name] = value
			continue
		}

		// Hubs report firmware_revision as a bare int, stations as a
		// string like " 143". Trim and parse before the generic path.
		if name == "firmware_revision" {
			if s, ok := value.(string); ok {
				parsed, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
				if err != nil {
					continue
				}
				normalized[name] = parsed
				continue
			}
		}

		switch kind {
		case kindFloat:
			if f, ok := toFloat(value); ok {
				normalized[name] = f
			}
		case kindInt:
			if i, ok := toInt(value); ok {
				normalized[name] = i
			}
		}
	}

	return normalized
}

// toFloat converts numeric values and numeric strings to float64.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toInt converts integral values to int64. Floats are accepted only when
// they carry no fractional part, which is how JSON integers arrive after
// decoding into any.
func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case float32:
		return toInt(float64(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		for _, r := range s {
			if r < '0' || r > '9' {
				return 0, false
			}
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
