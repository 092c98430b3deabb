package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// TestLoad_Defaults verifies that a bare environment resolves the complete
// default tree.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.API.RateLimit)
	assert.Equal(t, "https://swd.weatherflow.com/swd/rest", cfg.API.BaseURL)
	assert.Equal(t, 3, cfg.HTTP.FetchRetries)
	assert.Equal(t, 5*time.Second, cfg.HTTP.FetchRetryWait)
	assert.Equal(t, 30*time.Second, cfg.HTTP.FetchTimeout)
	assert.True(t, cfg.InfluxDB.Enabled)
	assert.Equal(t, 5000, cfg.InfluxDB.BatchSize)
	assert.True(t, cfg.Collector.UDP.Enabled)
	assert.Equal(t, ":50222", cfg.Collector.UDP.ListenAddress)
	assert.False(t, cfg.Collector.RestForecasts.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Collector.RestObservations.Interval)
	assert.Equal(t, ":6789", cfg.Server.ListenAddress)
	assert.Equal(t, 256, cfg.Events.BufferSize)
	assert.Equal(t, "collector_rest_observations_device", cfg.PrimarySource)
	assert.Equal(t, "info", cfg.Log.Level)
}

// TestLoad_YAMLFile verifies that an explicit config file overrides
// defaults, including duration values given as strings.
func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.yaml")
	content := `
api:
  token: test-token
  rate_limit: 30
http:
  fetch_timeout: 45s
collector:
  rest_forecasts:
    enabled: true
    interval: 10m
influxdb:
  bucket: custom-bucket
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-token", cfg.API.Token)
	assert.Equal(t, 30, cfg.API.RateLimit)
	assert.Equal(t, 45*time.Second, cfg.HTTP.FetchTimeout)
	assert.True(t, cfg.Collector.RestForecasts.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Collector.RestForecasts.Interval)
	assert.Equal(t, "custom-bucket", cfg.InfluxDB.Bucket)

	// Untouched keys keep their defaults.
	assert.Equal(t, ":6789", cfg.Server.ListenAddress)
}

// TestLoad_Environment verifies env var resolution with the
// WEATHERFLOW_COLLECTOR prefix and dot-to-underscore mapping.
func TestLoad_Environment(t *testing.T) {
	t.Setenv("WEATHERFLOW_COLLECTOR_API_TOKEN", "env-token")
	t.Setenv("WEATHERFLOW_COLLECTOR_INFLUXDB_URL", "http://influx:8086")
	t.Setenv("WEATHERFLOW_COLLECTOR_COLLECTOR_UDP_ENABLED", "false")
	t.Setenv("WEATHERFLOW_COLLECTOR_HTTP_FETCH_RETRY_WAIT", "2s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.API.Token)
	assert.Equal(t, "http://influx:8086", cfg.InfluxDB.URL)
	assert.False(t, cfg.Collector.UDP.Enabled)
	assert.Equal(t, 2*time.Second, cfg.HTTP.FetchRetryWait)
}

// TestLoad_MissingFile verifies that an explicitly named but absent config
// file is a configuration error rather than a silent fallback.
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

// TestValidate covers the cross-field requirements.
func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.API.Token = "token"
		return cfg
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		hasError bool
	}{
		{
			name:     "valid defaults with token",
			mutate:   func(c *Config) {},
			hasError: false,
		},
		{
			name: "missing token with REST collector enabled",
			mutate: func(c *Config) {
				c.API.Token = ""
			},
			hasError: true,
		},
		{
			name: "missing token is fine for UDP-only deployments",
			mutate: func(c *Config) {
				c.API.Token = ""
				c.Collector.RestObservationsDevice.Enabled = false
			},
			hasError: false,
		},
		{
			name: "influxdb enabled without bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Bucket = ""
			},
			hasError: true,
		},
		{
			name: "influxdb disabled ignores influxdb settings",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = false
				c.InfluxDB.URL = ""
				c.InfluxDB.Bucket = ""
			},
			hasError: false,
		},
		{
			name: "zero rate limit",
			mutate: func(c *Config) {
				c.API.RateLimit = 0
			},
			hasError: true,
		},
		{
			name: "file storage without directory",
			mutate: func(c *Config) {
				c.Storage.File.Enabled = true
				c.Storage.File.Directory = ""
			},
			hasError: true,
		},
		{
			name: "zero event buffer",
			mutate: func(c *Config) {
				c.Events.BufferSize = 0
			},
			hasError: true,
		},
		{
			name: "unknown primary source",
			mutate: func(c *Config) {
				c.PrimarySource = "collector_carrier_pigeon"
			},
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.hasError {
				require.Error(t, err)
				var cliErr *model.CLIError
				require.True(t, errors.As(err, &cliErr))
				assert.Equal(t, model.ExitConfigError, cliErr.Code)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestValidate_NormalizesPrimarySource verifies the bare collector name
// is accepted and canonicalized.
func TestValidate_NormalizesPrimarySource(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.API.Token = "token"
	cfg.PrimarySource = "udp"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "collector_udp", cfg.PrimarySource)
}

// TestRequestDelay verifies the rate-limit to inter-request delay math.
func TestRequestDelay(t *testing.T) {
	cfg := &Config{API: APIConfig{RateLimit: 15}}
	assert.Equal(t, 4*time.Second, cfg.RequestDelay())

	cfg.API.RateLimit = 60
	assert.Equal(t, time.Second, cfg.RequestDelay())
}

// TestWriteStarter verifies starter generation and overwrite protection.
func TestWriteStarter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "collector.yaml")

	require.NoError(t, WriteStarter(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasPrefix(content, "# weatherflow-collector configuration"))
	assert.Contains(t, content, "WEATHERFLOW_COLLECTOR_API_TOKEN")
	assert.Contains(t, content, "rate_limit: 15")

	// The generated file must itself load cleanly.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.API.RateLimit)

	// A second init against the same path must refuse to overwrite.
	err = WriteStarter(path)
	require.Error(t, err)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

// TestRedacted verifies secret masking for `config show`.
func TestRedacted(t *testing.T) {
	cfg := &Config{
		API:      APIConfig{Token: "secret-api"},
		InfluxDB: InfluxDBConfig{Token: "secret-influx", URL: "http://influx:8086"},
	}

	red := cfg.Redacted()

	assert.Equal(t, "[redacted]", red.API.Token)
	assert.Equal(t, "[redacted]", red.InfluxDB.Token)
	assert.Equal(t, "http://influx:8086", red.InfluxDB.URL)

	// The original must not be mutated.
	assert.Equal(t, "secret-api", cfg.API.Token)

	// Empty tokens stay empty so "unset" remains visible.
	empty := (&Config{}).Redacted()
	assert.Empty(t, empty.API.Token)
}

// TestSettings verifies the flattened key map matches the file format.
func TestSettings(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	settings, err := cfg.Settings()
	require.NoError(t, err)

	server, ok := settings["server"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ":6789", server["listen_address"])

	// Durations come out as strings, the way files and env express them.
	httpSettings, ok := settings["http"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "5s", httpSettings["fetch_retry_wait"])

	collector, ok := settings["collector"].(map[string]any)
	require.True(t, ok)
	rest, ok := collector["rest_observations"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1m0s", rest["interval"])
}
