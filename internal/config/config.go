package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// EnvPrefix is prepended (with an underscore) to every environment
// variable the collector reads, e.g. WEATHERFLOW_COLLECTOR_API_TOKEN.
const EnvPrefix = "WEATHERFLOW_COLLECTOR"

// Config is the fully resolved configuration tree. Field names map to
// viper keys via mapstructure tags; the derived environment variable for
// a key is EnvPrefix + "_" + the key with dots replaced by underscores
// (api.token → WEATHERFLOW_COLLECTOR_API_TOKEN).
type Config struct {
	// API holds WeatherFlow REST/WebSocket endpoint settings.
	API APIConfig `mapstructure:"api"`

	// HTTP controls the retrying fetch helper shared by all REST collectors.
	HTTP HTTPConfig `mapstructure:"http"`

	// InfluxDB configures the time-series storage backend.
	InfluxDB InfluxDBConfig `mapstructure:"influxdb"`

	// Storage configures the secondary (file) storage backend.
	Storage StorageConfig `mapstructure:"storage"`

	// Collector holds per-collector enable flags and intervals.
	Collector CollectorConfig `mapstructure:"collector"`

	// Server configures the embedded HTTP/WebSocket API server.
	Server ServerConfig `mapstructure:"server"`

	// Events configures the in-process publish/subscribe bus.
	Events EventsConfig `mapstructure:"events"`

	// Stations configures metadata overrides for fetched station records.
	Stations StationsConfig `mapstructure:"stations"`

	// Log controls level and output format of the process logger.
	Log LogConfig `mapstructure:"log"`

	// PrimarySource names the collector_type whose points are duplicated
	// under collector_type=primary, so dashboards can query one stable
	// series regardless of which collectors are enabled.
	PrimarySource string `mapstructure:"primary_source"`
}

// APIConfig holds the WeatherFlow cloud API settings.
type APIConfig struct {
	// Token is the personal access token used for REST and WebSocket
	// requests. Required whenever a REST or WebSocket collector is enabled.
	Token string `mapstructure:"token"`

	// RateLimit is the per-minute request budget for REST polling. The
	// delay between successive device requests is 60s / RateLimit.
	RateLimit int `mapstructure:"rate_limit"`

	// BaseURL is the REST endpoint root, without a trailing slash.
	BaseURL string `mapstructure:"base_url"`

	// WebsocketURL is the streaming endpoint for the websocket collector.
	WebsocketURL string `mapstructure:"websocket_url"`
}

// HTTPConfig tunes the shared retrying HTTP fetch helper.
type HTTPConfig struct {
	// FetchRetries is the number of attempts before a fetch gives up.
	FetchRetries int `mapstructure:"fetch_retries"`

	// FetchRetryWait is the pause between attempts.
	FetchRetryWait time.Duration `mapstructure:"fetch_retry_wait"`

	// FetchTimeout bounds a single request, connection setup included.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// InfluxDBConfig holds the InfluxDB v2 connection and batching settings.
type InfluxDBConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`

	// BatchSize caps how many points a single write request carries;
	// larger batches are split into chunks of this size.
	BatchSize int `mapstructure:"batch_size"`
}

// StorageConfig groups non-InfluxDB storage backends.
type StorageConfig struct {
	File FileStorageConfig `mapstructure:"file"`
}

// FileStorageConfig configures the JSON-lines file sink used for
// debugging and offline analysis.
type FileStorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

// CollectorConfig holds one section per collector.
type CollectorConfig struct {
	UDP                     UDPCollectorConfig     `mapstructure:"udp"`
	Websocket               ToggleConfig           `mapstructure:"websocket"`
	RestObservationsDevice  ToggleConfig           `mapstructure:"rest_observations_device"`
	RestObservationsStation ToggleConfig           `mapstructure:"rest_observations_station"`
	RestObservations        RestObservationsConfig `mapstructure:"rest_observations"`
	RestForecasts           RestForecastsConfig    `mapstructure:"rest_forecasts"`
	RestImport              RestImportConfig       `mapstructure:"rest_import"`
	System                  SystemCollectorConfig  `mapstructure:"system"`
}

// ToggleConfig is a bare enable flag for collectors with no extra knobs.
type ToggleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// UDPCollectorConfig configures the LAN broadcast listener.
type UDPCollectorConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// ListenAddress is the UDP bind address. Tempest hubs broadcast on
	// port 50222.
	ListenAddress string `mapstructure:"listen_address"`
}

// RestObservationsConfig holds settings shared by the device and station
// observation pollers.
type RestObservationsConfig struct {
	// Interval is the target cadence of a full polling cycle. The poller
	// sleeps interval minus elapsed time, floored at zero.
	Interval time.Duration `mapstructure:"interval"`
}

// RestForecastsConfig configures the forecast poller.
type RestForecastsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// RestImportConfig configures the one-shot historical import.
type RestImportConfig struct {
	// FetchWorkers bounds how many day-range requests run concurrently.
	FetchWorkers int `mapstructure:"fetch_workers"`
}

// SystemCollectorConfig configures host telemetry sampling.
type SystemCollectorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// ServerConfig configures the embedded REST/WebSocket server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// ListenAddress is the TCP bind address for the gin engine. The image
	// health check probes GET /health on this address.
	ListenAddress string `mapstructure:"listen_address"`
}

// EventsConfig tunes the in-process event bus.
type EventsConfig struct {
	// BufferSize is the per-subscriber channel depth. A subscriber that
	// falls this far behind starts losing messages rather than blocking
	// publishers.
	BufferSize int `mapstructure:"buffer_size"`
}

// StationsConfig configures station metadata overrides.
type StationsConfig struct {
	// OverridesFile points at an optional JSONC file whose entries replace
	// or extend fetched station metadata. Empty disables overrides.
	OverridesFile string `mapstructure:"overrides_file"`

	// Watch reloads the overrides file when it changes on disk.
	Watch bool `mapstructure:"watch"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is a logrus level name (debug, info, warning, error).
	Level string `mapstructure:"level"`

	// Format selects "console" (colored text) or "json".
	Format string `mapstructure:"format"`
}

// setDefaults registers a default for every key so env-only deployments
// resolve a complete tree and `config show` can display all knobs.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.token", "")
	v.SetDefault("api.rate_limit", 15)
	v.SetDefault("api.base_url", "https://swd.weatherflow.com/swd/rest")
	v.SetDefault("api.websocket_url", "wss://ws.weatherflow.com/swd/data")

	v.SetDefault("http.fetch_retries", 3)
	v.SetDefault("http.fetch_retry_wait", "5s")
	v.SetDefault("http.fetch_timeout", "30s")

	v.SetDefault("influxdb.enabled", true)
	v.SetDefault("influxdb.url", "http://localhost:8086")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "weatherflow")
	v.SetDefault("influxdb.batch_size", 5000)

	v.SetDefault("storage.file.enabled", false)
	v.SetDefault("storage.file.directory", "data")

	v.SetDefault("collector.udp.enabled", true)
	v.SetDefault("collector.udp.listen_address", ":50222")
	v.SetDefault("collector.websocket.enabled", false)
	v.SetDefault("collector.rest_observations_device.enabled", true)
	v.SetDefault("collector.rest_observations_station.enabled", false)
	v.SetDefault("collector.rest_observations.interval", "60s")
	v.SetDefault("collector.rest_forecasts.enabled", false)
	v.SetDefault("collector.rest_forecasts.interval", "5m")
	v.SetDefault("collector.rest_import.fetch_workers", 4)
	v.SetDefault("collector.system.enabled", true)
	v.SetDefault("collector.system.interval", "60s")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen_address", ":6789")

	v.SetDefault("events.buffer_size", 256)

	v.SetDefault("stations.overrides_file", "")
	v.SetDefault("stations.watch", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("primary_source", "collector_rest_observations_device")
}

// Load resolves the configuration from the environment and, when filePath
// is non-empty, a YAML file. A missing explicit file is an error; without
// a file the environment and defaults alone are used.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("failed to read config file %s", filePath),
				err,
			)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "failed to decode configuration", err)
	}

	return &cfg, nil
}

// Validate checks cross-field requirements that individual defaults cannot
// guarantee, and normalizes primary_source to its canonical collector
// name. It returns a CLIError with ExitConfigError naming the first
// problem found.
func (c *Config) Validate() error {
	if c.needsAPIToken() && c.API.Token == "" {
		return model.NewCLIError(
			model.ExitConfigError,
			"api.token is required when a REST or websocket collector is enabled (set WEATHERFLOW_COLLECTOR_API_TOKEN)",
		)
	}

	if c.API.RateLimit <= 0 {
		return model.NewCLIError(model.ExitConfigError, "api.rate_limit must be positive")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return model.NewCLIError(model.ExitConfigError, "influxdb.url is required when InfluxDB storage is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			return model.NewCLIError(model.ExitConfigError, "influxdb.bucket is required when InfluxDB storage is enabled")
		}
		if c.InfluxDB.BatchSize <= 0 {
			return model.NewCLIError(model.ExitConfigError, "influxdb.batch_size must be positive")
		}
	}

	if c.Storage.File.Enabled && c.Storage.File.Directory == "" {
		return model.NewCLIError(model.ExitConfigError, "storage.file.directory is required when file storage is enabled")
	}

	if c.Events.BufferSize <= 0 {
		return model.NewCLIError(model.ExitConfigError, "events.buffer_size must be positive")
	}

	if c.Collector.RestImport.FetchWorkers <= 0 {
		return model.NewCLIError(model.ExitConfigError, "collector.rest_import.fetch_workers must be positive")
	}

	if c.PrimarySource != "" {
		ct, err := model.ParseCollectorType(c.PrimarySource)
		if err != nil {
			return model.WrapCLIError(model.ExitConfigError, "primary_source is not a collector", err)
		}
		c.PrimarySource = ct.String()
	}

	return nil
}

// needsAPIToken reports whether any enabled collector talks to the
// WeatherFlow cloud. The UDP listener is LAN-only and works untokened.
func (c *Config) needsAPIToken() bool {
	return c.Collector.Websocket.Enabled ||
		c.Collector.RestObservationsDevice.Enabled ||
		c.Collector.RestObservationsStation.Enabled ||
		c.Collector.RestForecasts.Enabled
}

// RequestDelay returns the pause between successive REST requests derived
// from the rate limit budget.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(float64(time.Minute) / float64(c.API.RateLimit))
}
