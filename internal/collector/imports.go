package collector

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
	"github.com/mmr-tortoise/weatherflow-collector/internal/station"
)

// importDayLayout is the date format the station stats endpoint uses for
// first_ob_day_local and last_ob_day_local.
const importDayLayout = "2006-01-02"

// ImportCollector backfills history: it reads each station's first and
// last observation days from the stats endpoint, then fetches every day
// in between as minute-bucketed observations. It runs once and exits
// rather than looping like the other collectors.
type ImportCollector struct {
	base
	client   apiClient
	stations stationSource
	workers  int

	imported atomic.Int64
	failed   atomic.Int64
}

// NewImportCollector builds the one-shot history importer.
func NewImportCollector(cfg *config.Config, client apiClient, stations stationSource, bus *events.Bus, logger *logrus.Entry) *ImportCollector {
	return &ImportCollector{
		base: base{
			bus:        bus,
			logger:     logger,
			moduleName: model.CollectorRestImport.String(),
		},
		client:   client,
		stations: stations,
		workers:  cfg.Collector.RestImport.FetchWorkers,
	}
}

// Name implements Collector.
func (c *ImportCollector) Name() string { return c.moduleName }

// DaysImported reports how many day documents have been fetched and
// published so far.
func (c *ImportCollector) DaysImported() int64 { return c.imported.Load() }

// DaysFailed reports how many day fetches were skipped after failing.
func (c *ImportCollector) DaysFailed() int64 { return c.failed.Load() }

// RunOnce imports history for every enabled station and returns. Days
// that fail to fetch are logged and skipped; only cancellation or an
// unreadable stats document aborts the run.
func (c *ImportCollector) RunOnce(ctx context.Context) error {
	for _, st := range c.stations.EnabledStations() {
		if err := c.importStation(ctx, &st); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (c *ImportCollector) importStation(ctx context.Context, st *station.Station) error {
	start := time.Now()

	stats, err := c.client.Fetch(ctx, c.client.StationStatsURL(st.StationID), c.moduleName)
	if err != nil {
		return fmt.Errorf("failed to fetch stats for station %d: %w", st.StationID, err)
	}

	first, last, err := observationDayRange(stats, st.TimeZone)
	if err != nil {
		return fmt.Errorf("station %d: %w", st.StationID, err)
	}

	days := int(last.Sub(first).Hours()/24) + 1
	c.logger.WithFields(logrus.Fields{
		"station_id": st.StationID,
		"first_day":  first.Format(importDayLayout),
		"last_day":   last.Format(importDayLayout),
		"days":       days,
		"workers":    c.workers,
	}).Info("importing station history")

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.workers)

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			return c.importDay(egCtx, st, day)
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	c.requests = int(c.imported.Load())
	c.errors = int(c.failed.Load())
	c.publishMetrics("handle_import_station", time.Since(start))
	return nil
}

// importDay fetches one day of observations and publishes it. Fetch
// failures are logged and counted but do not abort the import.
func (c *ImportCollector) importDay(ctx context.Context, st *station.Station, day time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := c.client.Fetch(ctx, c.client.DayImportURL(st.StationID, day.Unix()), c.moduleName)
	if err != nil {
		c.failed.Add(1)
		c.logger.WithError(err).WithFields(logrus.Fields{
			"station_id": st.StationID,
			"day":        day.Format(importDayLayout),
		}).Warn("day import failed, skipping")
		return nil
	}

	c.imported.Add(1)
	c.publishMessage(&model.Message{
		Metadata: model.Metadata{
			CollectorType: c.moduleName,
			StationID:     st.StationID,
			CollectedAt:   time.Now().UTC(),
		},
		Data:        data,
		StationInfo: st.Info(),
	})
	return nil
}

// observationDayRange extracts the station's first and last observation
// days from a stats document. Days resolve to local midnight in the
// station's time zone so the per-day windows line up with the API's
// local-day buckets.
func observationDayRange(stats map[string]any, timeZone string) (time.Time, time.Time, error) {
	location, err := time.LoadLocation(timeZone)
	if err != nil {
		location = time.UTC
	}

	first, err := parseStatsDay(stats, "first_ob_day_local", location)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	last, err := parseStatsDay(stats, "last_ob_day_local", location)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if last.Before(first) {
		return time.Time{}, time.Time{}, fmt.Errorf("stats document has last day %s before first day %s",
			last.Format(importDayLayout), first.Format(importDayLayout))
	}
	return first, last, nil
}

func parseStatsDay(stats map[string]any, key string, location *time.Location) (time.Time, error) {
	raw, ok := stats[key].(string)
	if !ok || raw == "" {
		return time.Time{}, fmt.Errorf("stats document missing %s", key)
	}
	day, err := time.ParseInLocation(importDayLayout, raw, location)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return day, nil
}
