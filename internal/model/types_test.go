package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCollectorType_String verifies that CollectorType values produce the
// exact strings stored in the collector_type tag.
func TestCollectorType_String(t *testing.T) {
	tests := []struct {
		ct       CollectorType
		expected string
	}{
		{CollectorUDP, "collector_udp"},
		{CollectorWebsocket, "collector_websocket"},
		{CollectorRestObservationsDevice, "collector_rest_observations_device"},
		{CollectorRestObservationsStation, "collector_rest_observations_station"},
		{CollectorRestForecasts, "collector_rest_forecasts"},
		{CollectorRestImport, "collector_rest_import"},
		{CollectorSystem, "collector_system"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.ct.String())
		})
	}
}

// TestCollectorType_IsValid checks that only defined collector types pass
// validation.
func TestCollectorType_IsValid(t *testing.T) {
	assert.True(t, CollectorUDP.IsValid())
	assert.True(t, CollectorRestImport.IsValid())
	assert.False(t, CollectorType("collector_carrier_pigeon").IsValid())
	assert.False(t, CollectorType("").IsValid())
}

// TestCollectorType_WithMessageType verifies the tag value built for
// suffixed observation types.
func TestCollectorType_WithMessageType(t *testing.T) {
	assert.Equal(t, "collector_udp_obs_st", CollectorUDP.WithMessageType("obs_st"))
	assert.Equal(t, "collector_websocket_rapid_wind", CollectorWebsocket.WithMessageType("rapid_wind"))
	assert.Equal(t, "collector_udp", CollectorUDP.WithMessageType(""),
		"empty message type should leave the base value unchanged")
}

// TestParseCollectorType verifies string-to-type conversion, including the
// shorthand form without the collector_ prefix used in configuration.
func TestParseCollectorType(t *testing.T) {
	tests := []struct {
		input    string
		expected CollectorType
		hasError bool
	}{
		{"udp", CollectorUDP, false},
		{"collector_udp", CollectorUDP, false},
		{"websocket", CollectorWebsocket, false},
		{"rest_observations_device", CollectorRestObservationsDevice, false},
		{"UDP", CollectorUDP, false},   // case insensitive
		{" udp ", CollectorUDP, false}, // whitespace trimmed
		{"carrier_pigeon", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			result, err := ParseCollectorType(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestMessage_IsForecast verifies forecast detection by collector_type
// substring, which controls whether the current conditions handler skips a
// message.
func TestMessage_IsForecast(t *testing.T) {
	forecast := &Message{Metadata: Metadata{CollectorType: "collector_rest_forecasts"}}
	observation := &Message{Metadata: Metadata{CollectorType: "collector_udp_obs_st"}}

	assert.True(t, forecast.IsForecast())
	assert.False(t, observation.IsForecast())
}

// TestMessage_HasStationInfo verifies station info presence detection.
func TestMessage_HasStationInfo(t *testing.T) {
	withInfo := &Message{StationInfo: &StationInfo{StationID: 12345}}
	withoutInfo := &Message{}

	assert.True(t, withInfo.HasStationInfo())
	assert.False(t, withoutInfo.HasStationInfo())
}

// TestNewSinglePayload verifies construction of single-point storage payloads.
func TestNewSinglePayload(t *testing.T) {
	tags := map[string]string{"station_id": "12345"}
	fields := map[string]any{"air_temperature": 21.5}
	ts := time.Now().Unix()

	p := NewSinglePayload("weatherflow_current_conditions", tags, fields, ts)

	assert.Equal(t, DataTypeSingle, p.DataType)
	assert.Equal(t, "weatherflow_current_conditions", p.Measurement)
	assert.Equal(t, tags, p.Tags)
	assert.Equal(t, fields, p.Fields)
	assert.Equal(t, ts, p.Timestamp)
	assert.Empty(t, p.Batch, "single payloads must not carry batch points")
}

// TestNewBatchPayload verifies construction of batch storage payloads.
func TestNewBatchPayload(t *testing.T) {
	points := []BatchPoint{
		{Measurement: "weatherflow_forecast_hourly", Timestamp: 1700000000},
		{Measurement: "weatherflow_forecast_hourly", Timestamp: 1700003600},
	}

	p := NewBatchPayload(points)

	assert.Equal(t, DataTypeBatch, p.DataType)
	require.Len(t, p.Batch, 2)
	assert.Empty(t, p.Measurement, "batch payloads must not carry a single-point measurement")
}

// TestCLIError_Error verifies the error message format with and without
// a wrapped underlying error.
func TestCLIError_Error(t *testing.T) {
	withoutErr := NewCLIError(ExitConfigError, "configuration validation failed")
	assert.Equal(t, "configuration validation failed", withoutErr.Error())

	underlying := errors.New("dial tcp: connection refused")
	withErr := WrapCLIError(ExitStorageError, "failed to reach InfluxDB", underlying)
	assert.Equal(t, "failed to reach InfluxDB: dial tcp: connection refused", withErr.Error())
}

// TestCLIError_Unwrap verifies that errors.As and errors.Is can traverse
// the wrapped error chain.
func TestCLIError_Unwrap(t *testing.T) {
	underlying := errors.New("boom")
	wrapped := WrapCLIError(ExitGeneralError, "build failed", underlying)

	assert.True(t, errors.Is(wrapped, underlying))

	var cliErr *CLIError
	require.True(t, errors.As(error(wrapped), &cliErr))
	assert.Equal(t, ExitGeneralError, cliErr.Code)
}

// TestExitCodes verifies the numeric values of the exit codes, which form
// part of the CLI contract with scripts and CI systems.
func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitCode(0), ExitSuccess)
	assert.Equal(t, ExitCode(1), ExitGeneralError)
	assert.Equal(t, ExitCode(2), ExitConfigError)
	assert.Equal(t, ExitCode(3), ExitStorageError)
	assert.Equal(t, ExitCode(4), ExitAPIError)
}
