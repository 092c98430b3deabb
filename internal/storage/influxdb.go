package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// Timestamp sanity bounds for live points. Device clocks drift and a few
// hubs have shipped readings dated years into the past after a power
// loss; anything outside this window is stamped with the current time.
const (
	maxFutureDrift = 24 * time.Hour
	maxPastDrift   = 365 * 24 * time.Hour
)

// InfluxDB consumes storage payloads from the bus and writes them as
// points with seconds precision. Write errors are counted and surfaced
// through Status; they never stop the consume loop.
type InfluxDB struct {
	bus           *events.Bus
	logger        *logrus.Entry
	client        influxdb2.Client
	writer        api.WriteAPIBlocking
	batchSize     int
	primarySource string

	mu       sync.Mutex
	payloads uint64
	failures uint64
	lastErr  error

	now func() time.Time
}

// NewInfluxDB builds the writer against a real InfluxDB v2 endpoint.
func NewInfluxDB(cfg *config.Config, bus *events.Bus, logger *logrus.Entry) *InfluxDB {
	opts := influxdb2.DefaultOptions().SetPrecision(time.Second)
	client := influxdb2.NewClientWithOptions(cfg.InfluxDB.URL, cfg.InfluxDB.Token, opts)
	writer := client.WriteAPIBlocking(cfg.InfluxDB.Org, cfg.InfluxDB.Bucket)
	return newInfluxDB(cfg, bus, writer, client, logger)
}

func newInfluxDB(cfg *config.Config, bus *events.Bus, writer api.WriteAPIBlocking, client influxdb2.Client, logger *logrus.Entry) *InfluxDB {
	return &InfluxDB{
		bus:           bus,
		logger:        logger,
		client:        client,
		writer:        writer,
		batchSize:     cfg.InfluxDB.BatchSize,
		primarySource: cfg.PrimarySource,
		now:           time.Now,
	}
}

// Name identifies the writer in logs and health output.
func (s *InfluxDB) Name() string { return "influxdb_storage" }

// Ping verifies the endpoint is reachable, so serve can fail fast with a
// storage error instead of logging write failures forever.
func (s *InfluxDB) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitStorageError, "influxdb is unreachable", err)
	}
	if !ok {
		return model.NewCLIError(model.ExitStorageError, "influxdb did not answer the ping")
	}
	return nil
}

// Run consumes the storage topic until ctx is cancelled or the bus
// closes.
func (s *InfluxDB) Run(ctx context.Context) error {
	sub := s.bus.Subscribe(events.TopicStorageInfluxDB)
	defer sub.Cancel()

	s.logger.WithField("batch_size", s.batchSize).Info("influxdb writer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C():
			if !ok {
				return nil
			}
			sp, ok := payload.(*model.StoragePayload)
			if !ok {
				continue
			}
			s.store(ctx, sp)
		}
	}
}

func (s *InfluxDB) store(ctx context.Context, sp *model.StoragePayload) {
	var err error
	switch sp.DataType {
	case model.DataTypeBatch:
		err = s.writeBatch(ctx, sp.Batch)
	default:
		err = s.writeSingle(ctx, sp)
	}

	s.mu.Lock()
	s.payloads++
	if err != nil {
		s.failures++
		s.lastErr = err
	} else {
		s.lastErr = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).WithField("measurement", sp.Measurement).Error("influxdb write failed")
	}
}

func (s *InfluxDB) writeSingle(ctx context.Context, sp *model.StoragePayload) error {
	points := s.buildPoints(sp.Measurement, sp.Tags, sp.Fields, s.clampTimestamp(sp.Timestamp))
	return s.writer.WritePoint(ctx, points...)
}

// writeBatch writes a batch in chunks of at most batchSize points.
// Batch timestamps are taken as-is: the importer backfills readings that
// are legitimately years old.
func (s *InfluxDB) writeBatch(ctx context.Context, batch []model.BatchPoint) error {
	points := make([]*write.Point, 0, len(batch))
	for i := range batch {
		bp := &batch[i]
		ts := s.now()
		if bp.Timestamp != 0 {
			ts = time.Unix(bp.Timestamp, 0)
		}
		points = append(points, s.buildPoints(bp.Measurement, bp.Tags, bp.Fields, ts)...)
	}

	for start := 0; start < len(points); start += s.batchSize {
		end := start + s.batchSize
		if end > len(points) {
			end = len(points)
		}
		if err := s.writer.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("writing points %d-%d of %d: %w", start, end, len(points), err)
		}
		s.logger.WithFields(logrus.Fields{
			"points": end - start,
			"total":  len(points),
		}).Debug("batch chunk written")
	}
	return nil
}

// buildPoints creates the point for one reading plus, when the reading
// came from the configured primary source, a duplicate tagged
// collector_type=primary so dashboards can follow one series regardless
// of which collectors are enabled.
func (s *InfluxDB) buildPoints(measurement string, tags map[string]string, fields map[string]any, ts time.Time) []*write.Point {
	points := []*write.Point{write.NewPoint(measurement, tags, fields, ts)}

	if s.primarySource != "" && strings.HasPrefix(tags["collector_type"], s.primarySource) {
		dup := make(map[string]string, len(tags))
		for k, v := range tags {
			dup[k] = v
		}
		dup["collector_type"] = "primary"
		points = append(points, write.NewPoint(measurement, dup, fields, ts))
	}
	return points
}

// clampTimestamp bounds a live reading's timestamp: zero means now, and
// anything outside the drift window is replaced with now.
func (s *InfluxDB) clampTimestamp(epoch int64) time.Time {
	now := s.now()
	if epoch == 0 {
		return now
	}
	ts := time.Unix(epoch, 0)
	if ts.After(now.Add(maxFutureDrift)) || ts.Before(now.Add(-maxPastDrift)) {
		s.logger.WithField("timestamp", epoch).Warn("timestamp outside the accepted range, using current time")
		return now
	}
	return ts
}

// Consumed reports how many payloads the writer has taken off the bus,
// failed writes included. One-shot pipelines compare it with the bus
// delivery counter to detect drain.
func (s *InfluxDB) Consumed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads
}

// Status reports writer health for the health endpoint. Unhealthy means
// the most recent write failed.
func (s *InfluxDB) Status() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr != nil {
		return false, fmt.Sprintf("last write failed: %v (%d of %d payloads failed)", s.lastErr, s.failures, s.payloads)
	}
	return true, fmt.Sprintf("%d payloads written, %d failed", s.payloads, s.failures)
}

// Close releases the underlying client. Call after Run has returned.
func (s *InfluxDB) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
