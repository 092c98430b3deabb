// Package weather derives secondary metrics from raw observations and
// normalizes field types before storage.
//
// DeriveMetrics computes the calculated_* series (dew point, vapor
// pressure deficit, heat index, wind chill, absolute humidity, sea level
// pressure, Beaufort rating) from air temperature, relative humidity and,
// when available, station pressure and average wind. NormalizeFields
// coerces every known observation field to its canonical storage type so
// a station that reports "15" and one that reports 15.0 land in the same
// InfluxDB field type.
package weather
