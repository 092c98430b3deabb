package wfapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// fetchMetricName labels the transfer counters this client publishes.
const fetchMetricName = "fetch_data_from_url"

// transferCounters accumulates per-collector transfer statistics.
// Requests and errors grow for the lifetime of the client; duration and
// bytes reset after every metrics publish so they read as "since last
// report".
type transferCounters struct {
	requests int
	errors   int
	duration float64
	bytes    int64
}

// Client fetches JSON documents from the WeatherFlow API with retries and
// metrics reporting. Safe for concurrent use by multiple collectors.
type Client struct {
	httpClient *http.Client
	baseURL    string
	wsURL      string
	token      string
	retries    int
	retryWait  time.Duration
	bus        *events.Bus
	logger     *logrus.Entry

	mu       sync.Mutex
	counters map[string]*transferCounters
}

// NewClient builds a client from the resolved configuration.
func NewClient(cfg *config.Config, bus *events.Bus, logger *logrus.Entry) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTP.FetchTimeout},
		baseURL:    strings.TrimRight(cfg.API.BaseURL, "/"),
		wsURL:      cfg.API.WebsocketURL,
		token:      cfg.API.Token,
		retries:    cfg.HTTP.FetchRetries,
		retryWait:  cfg.HTTP.FetchRetryWait,
		bus:        bus,
		logger:     logger,
	}
}

// Fetch GETs rawURL and decodes the JSON object it returns. Transient
// failures (5xx statuses, network errors) are retried up to the
// configured attempt count with a fixed wait in between; 4xx statuses,
// malformed responses and context cancellation end the cycle early.
// Counters are published to the system metrics topic keyed by
// collectorType after a success and again after a final failure.
func (c *Client) Fetch(ctx context.Context, rawURL, collectorType string) (map[string]any, error) {
	counters := c.countersFor(collectorType)

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				c.publishMetrics(collectorType)
				return nil, ctx.Err()
			case <-time.After(c.retryWait):
			}
		}

		data, retryable, err := c.fetchOnce(ctx, rawURL, counters)
		if err == nil {
			c.publishMetrics(collectorType)
			return data, nil
		}

		lastErr = err
		if ctx.Err() != nil || !retryable {
			break
		}

		c.logger.WithFields(logrus.Fields{
			"collector_type": collectorType,
			"attempt":        attempt + 1,
		}).Warn(err.Error())
	}

	c.publishMetrics(collectorType)
	return nil, lastErr
}

// fetchOnce performs a single request cycle. The second return value
// reports whether the failure is worth retrying.
func (c *Client) fetchOnce(ctx context.Context, rawURL string, counters *transferCounters) (map[string]any, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		c.countError(counters)
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countError(counters)
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		c.countError(counters)
		// Client errors (bad token, unknown station) will not heal with
		// another attempt; server errors and everything else might.
		retryable := resp.StatusCode < 400 || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.countError(counters)
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		c.countError(counters)
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}

	c.mu.Lock()
	counters.requests++
	counters.duration += time.Since(start).Seconds()
	counters.bytes += int64(len(body))
	c.mu.Unlock()

	return data, false, nil
}

func (c *Client) countError(counters *transferCounters) {
	c.mu.Lock()
	counters.errors++
	c.mu.Unlock()
}

func (c *Client) countersFor(collectorType string) *transferCounters {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counters == nil {
		c.counters = make(map[string]*transferCounters)
	}
	counters, ok := c.counters[collectorType]
	if !ok {
		counters = &transferCounters{}
		c.counters[collectorType] = counters
	}
	return counters
}

// publishMetrics emits the current counters for a collector and resets
// the windowed duration and bytes values.
func (c *Client) publishMetrics(collectorType string) {
	if c.bus == nil {
		return
	}

	c.mu.Lock()
	counters := c.counters[collectorType]
	payload := &model.MetricsPayload{
		MetricName: fetchMetricName,
		ModuleName: collectorType,
		Rate:       float64(counters.requests),
		Errors:     float64(counters.errors),
		Duration:   counters.duration,
		Bytes:      counters.bytes,
	}
	counters.duration = 0
	counters.bytes = 0
	c.mu.Unlock()

	c.bus.Publish(events.TopicSystemMetrics, payload)
}

// StationsURL lists every station visible to the configured token.
func (c *Client) StationsURL() string {
	return fmt.Sprintf("%s/stations?token=%s", c.baseURL, c.token)
}

// DeviceObservationsURL returns the latest observation set for a device.
func (c *Client) DeviceObservationsURL(deviceID int) string {
	return fmt.Sprintf("%s/observations/device/%d?api_key=%s", c.baseURL, deviceID, c.token)
}

// StationObservationsURL returns the consolidated latest observation for
// a station.
func (c *Client) StationObservationsURL(stationID int) string {
	return fmt.Sprintf("%s/observations/station/%d?api_key=%s", c.baseURL, stationID, c.token)
}

// ForecastURL returns the hourly and daily forecast document for a
// station.
func (c *Client) ForecastURL(stationID int) string {
	return fmt.Sprintf("%s/better_forecast?station_id=%d&token=%s", c.baseURL, stationID, c.token)
}

// StationStatsURL returns the station statistics document carrying the
// first and last observation days, used to size historical imports.
func (c *Client) StationStatsURL(stationID int) string {
	return fmt.Sprintf("%s/stats/station/%d?api_key=%s", c.baseURL, stationID, c.token)
}

// DayImportURL returns one day of minute-bucketed observations starting
// at dayStart (Unix seconds, local midnight), in metric units.
func (c *Client) DayImportURL(stationID int, dayStart int64) string {
	return fmt.Sprintf(
		"%s/observations/stn/%d?time_start=%d&time_end=%d&bucket=1&units_temp=c&units_wind=mps&units_pressure=mb&units_precip=mm&units_distance=km&api_key=%s",
		c.baseURL, stationID, dayStart, dayStart+86400-1, c.token,
	)
}

// WebsocketURL returns the streaming endpoint with the token attached.
func (c *Client) WebsocketURL() string {
	return fmt.Sprintf("%s?token=%s", c.wsURL, c.token)
}
