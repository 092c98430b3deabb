package model

import (
	"fmt"
	"strings"
	"time"
)

// CollectorType identifies the source that produced a message. The value is
// stored as the collector_type tag on every InfluxDB point, so dashboards can
// select series by transport.
//
// Observation collectors append the device message type to their base value
// (e.g. "collector_udp" becomes "collector_udp_obs_st"), which is why
// consumers match with HasPrefix/Contains rather than equality.
type CollectorType string

const (
	// CollectorUDP receives broadcasts from hubs on the local network.
	CollectorUDP CollectorType = "collector_udp"

	// CollectorWebsocket streams observations from the WeatherFlow
	// WebSocket endpoint.
	CollectorWebsocket CollectorType = "collector_websocket"

	// CollectorRestObservationsDevice polls per-device observations
	// from the REST API.
	CollectorRestObservationsDevice CollectorType = "collector_rest_observations_device"

	// CollectorRestObservationsStation polls station-level observations
	// (named fields, already merged across devices).
	CollectorRestObservationsStation CollectorType = "collector_rest_observations_station"

	// CollectorRestForecasts polls the better_forecast endpoint.
	CollectorRestForecasts CollectorType = "collector_rest_forecasts"

	// CollectorRestImport backfills historical observations day by day.
	CollectorRestImport CollectorType = "collector_rest_import"

	// CollectorSystem samples host telemetry for the collector itself.
	CollectorSystem CollectorType = "collector_system"
)

// String returns the string representation of CollectorType.
func (c CollectorType) String() string {
	return string(c)
}

// IsValid checks whether the CollectorType is one of the predefined sources.
func (c CollectorType) IsValid() bool {
	switch c {
	case CollectorUDP, CollectorWebsocket, CollectorRestObservationsDevice,
		CollectorRestObservationsStation, CollectorRestForecasts,
		CollectorRestImport, CollectorSystem:
		return true
	default:
		return false
	}
}

// WithMessageType appends a device message type (obs_st, rapid_wind, ...)
// to the collector type, producing the value stored in the collector_type tag.
func (c CollectorType) WithMessageType(messageType string) string {
	if messageType == "" {
		return string(c)
	}
	return string(c) + "_" + messageType
}

// ParseCollectorType converts a string to a CollectorType. The bare form
// without the "collector_" prefix is accepted too, so configuration can say
// "udp" instead of "collector_udp".
func ParseCollectorType(s string) (CollectorType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(v, "collector_") {
		v = "collector_" + v
	}
	ct := CollectorType(v)
	if !ct.IsValid() {
		return "", fmt.Errorf("invalid collector type: %q (valid: udp, websocket, rest_observations_device, rest_observations_station, rest_forecasts, rest_import, system)", s)
	}
	return ct, nil
}

// StationInfo carries the station metadata attached to observation messages.
// The fields become InfluxDB tags (station_name, station_latitude, ...) so
// every point can be located and labeled without a metadata join.
type StationInfo struct {
	StationID int     `json:"station_id"`
	Name      string  `json:"station_name"`
	Latitude  float64 `json:"station_latitude"`
	Longitude float64 `json:"station_longitude"`
	Elevation float64 `json:"station_elevation"`
	TimeZone  string  `json:"station_time_zone"`
}

// Metadata describes where a collector message came from. Not every field is
// set by every collector: UDP knows serial numbers, REST pollers know device
// or station ids.
type Metadata struct {
	// CollectorType is the full tag value, including any message-type
	// suffix (e.g. "collector_udp_obs_st").
	CollectorType string `json:"collector_type"`

	// StationID is the WeatherFlow station id, when known at collection time.
	StationID int `json:"station_id,omitempty"`

	// DeviceID is the WeatherFlow device id, when known at collection time.
	DeviceID int `json:"device_id,omitempty"`

	// SerialNumber is the reporting device serial (UDP/WebSocket sources).
	SerialNumber string `json:"serial_number,omitempty"`

	// CollectedAt is when the collector received the payload.
	CollectedAt time.Time `json:"collected_at"`
}

// Message is the payload published on the collector data and processed data
// topics. Data holds the decoded upstream JSON as-is; the processor attaches
// StationInfo before handlers see the message.
type Message struct {
	Metadata    Metadata       `json:"metadata"`
	Data        map[string]any `json:"data"`
	StationInfo *StationInfo   `json:"station_info,omitempty"`
}

// HasStationInfo reports whether station metadata has been resolved for
// this message. Handlers that tag points by station skip messages without it.
func (m *Message) HasStationInfo() bool {
	return m.StationInfo != nil
}

// IsForecast reports whether the message carries forecast data rather than
// a live observation.
func (m *Message) IsForecast() bool {
	return strings.Contains(m.Metadata.CollectorType, "forecast")
}

// DataType distinguishes the two storage payload shapes.
type DataType string

const (
	// DataTypeSingle is one measurement/tags/fields/timestamp point.
	DataTypeSingle DataType = "single"

	// DataTypeBatch is a list of points written in chunks, used by the
	// import backfill and forecast handlers.
	DataTypeBatch DataType = "batch"
)

// BatchPoint is one point inside a batch storage payload.
type BatchPoint struct {
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags"`
	Fields      map[string]any    `json:"fields"`

	// Timestamp is epoch seconds; zero means "now" at write time.
	Timestamp int64 `json:"timestamp"`
}

// StoragePayload is the payload published on the storage topic and consumed
// by the InfluxDB writer. Exactly one of the single-point fields or Batch is
// populated, selected by DataType.
type StoragePayload struct {
	DataType DataType `json:"data_type"`

	// Single-point form.
	Measurement string            `json:"measurement,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Fields      map[string]any    `json:"fields,omitempty"`
	Timestamp   int64             `json:"timestamp,omitempty"`

	// Batch form.
	Batch []BatchPoint `json:"batch,omitempty"`
}

// NewSinglePayload builds a single-point storage payload.
func NewSinglePayload(measurement string, tags map[string]string, fields map[string]any, timestamp int64) *StoragePayload {
	return &StoragePayload{
		DataType:    DataTypeSingle,
		Measurement: measurement,
		Tags:        tags,
		Fields:      fields,
		Timestamp:   timestamp,
	}
}

// NewBatchPayload builds a batch storage payload.
func NewBatchPayload(points []BatchPoint) *StoragePayload {
	return &StoragePayload{DataType: DataTypeBatch, Batch: points}
}

// MetricsPayload is the payload published on the system metrics topic.
// Collectors and handlers report their own throughput through it; the system
// metrics handler turns it into weatherflow_system_metrics points.
type MetricsPayload struct {
	// MetricName is the operation being measured
	// (e.g. "fetch_data_from_url", "handle_latest_device_observation").
	MetricName string `json:"metric_name"`

	// ModuleName is the reporting component
	// (e.g. "collector_udp", "influxdb_storage").
	ModuleName string `json:"module_name"`

	// Rate is the cumulative request/message count for the module.
	Rate float64 `json:"rate"`

	// Errors is the cumulative error count.
	Errors float64 `json:"errors"`

	// Duration is the processing time of the last operation, in seconds.
	Duration float64 `json:"duration"`

	// Bytes is the payload size transferred, when the metric involves I/O.
	Bytes int64 `json:"bytes,omitempty"`

	// ClientCount is the number of connected clients, for the WebSocket
	// provider.
	ClientCount int `json:"client_count,omitempty"`
}

// ImageInfo holds metadata about a collector image discovered through the
// Docker API. This data is fetched dynamically, not persisted.
type ImageInfo struct {
	// ID is the image identifier (sha256 digest, possibly truncated).
	ID string `json:"id"`

	// Reference is the repo:tag reference (e.g. "weatherflow-collector:latest").
	Reference string `json:"reference"`

	// Version is the collector version baked into the image labels.
	Version string `json:"version,omitempty"`

	// Tag is the build tag recorded at build time.
	Tag string `json:"tag,omitempty"`

	// CreatedAt is when the image was built.
	CreatedAt time.Time `json:"createdAt"`

	// Size is the image size in bytes.
	Size int64 `json:"size"`

	// Labels is the full label set on the image, including the
	// weatherflow.* management labels.
	Labels map[string]string `json:"labels,omitempty"`
}

// ExitCode defines the CLI exit codes. These codes allow scripts and CI
// systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error: an unrecognized
	// flag, an unreachable Docker engine, or a failed build all exit
	// with this code.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the collector configuration failed
	// validation (missing token, incomplete InfluxDB settings, ...).
	ExitConfigError ExitCode = 2

	// ExitStorageError indicates the storage backend could not be
	// reached or initialized.
	ExitStorageError ExitCode = 3

	// ExitAPIError indicates the WeatherFlow REST API rejected a request
	// that the collector cannot proceed without (e.g. station metadata).
	ExitAPIError ExitCode = 4
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
