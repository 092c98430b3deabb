// Package handler turns processed messages into storage payloads. Each
// handler consumes one topic and publishes InfluxDB-shaped points:
// current conditions and host metrics as single points, forecasts and
// historical imports as batches.
package handler
