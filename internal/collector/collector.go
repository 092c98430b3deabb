package collector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
	"github.com/mmr-tortoise/weatherflow-collector/internal/station"
)

// Collector is a long-running data source. Run blocks until ctx is
// cancelled and returns nil on a clean shutdown.
type Collector interface {
	Name() string
	Run(ctx context.Context) error
}

// apiClient is the slice of the REST client the pollers use.
type apiClient interface {
	Fetch(ctx context.Context, rawURL, collectorType string) (map[string]any, error)
	DeviceObservationsURL(deviceID int) string
	StationObservationsURL(stationID int) string
	ForecastURL(stationID int) string
	StationStatsURL(stationID int) string
	DayImportURL(stationID int, dayStart int64) string
	WebsocketURL() string
}

// stationSource lists the stations a collector should poll.
type stationSource interface {
	EnabledStations() []station.Station
}

// base carries the counters and publishing plumbing shared by all
// collectors. Counters are touched only from the owning collector's
// goroutine.
type base struct {
	bus        *events.Bus
	logger     *logrus.Entry
	moduleName string
	requests   int
	errors     int
}

// publishMessage hands a raw message to the pipeline.
func (b *base) publishMessage(msg *model.Message) {
	b.bus.Publish(events.TopicCollectorData, msg)
}

// publishMetrics reports the collector's counters plus the duration of
// the operation that just finished.
func (b *base) publishMetrics(metricName string, duration time.Duration) {
	b.bus.Publish(events.TopicSystemMetrics, &model.MetricsPayload{
		MetricName: metricName,
		ModuleName: b.moduleName,
		Rate:       float64(b.requests),
		Errors:     float64(b.errors),
		Duration:   duration.Seconds(),
	})
}

// sleepContext pauses for d or until ctx is cancelled, reporting whether
// the full pause elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// runCycles invokes cycle repeatedly, padding each iteration to the
// configured interval the way the pollers do: the sleep is the interval
// minus the time the cycle itself took, floored at zero.
func runCycles(ctx context.Context, logger *logrus.Entry, interval time.Duration, cycle func(context.Context)) error {
	for {
		start := time.Now()
		cycle(ctx)
		if ctx.Err() != nil {
			return nil
		}

		elapsed := time.Since(start)
		sleep := interval - elapsed
		if sleep < 0 {
			sleep = 0
		}

		logger.WithFields(logrus.Fields{
			"elapsed": elapsed.Round(time.Millisecond).String(),
			"sleep":   sleep.Round(time.Millisecond).String(),
		}).Debug("cycle complete")

		if !sleepContext(ctx, sleep) {
			return nil
		}
	}
}
