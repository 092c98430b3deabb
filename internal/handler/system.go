package handler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// systemMetricsMeasurement holds the pipeline's own throughput series.
const systemMetricsMeasurement = "weatherflow_system_metrics"

// SystemMetrics converts the counters collectors and the fetch client
// report into weatherflow_system_metrics points, so the pipeline watches
// itself through the same dashboards as the weather.
type SystemMetrics struct {
	bus    *events.Bus
	logger *logrus.Entry

	handled int
}

// NewSystemMetrics builds the metrics handler.
func NewSystemMetrics(bus *events.Bus, logger *logrus.Entry) *SystemMetrics {
	return &SystemMetrics{bus: bus, logger: logger}
}

// Run consumes metrics payloads until ctx is cancelled.
func (h *SystemMetrics) Run(ctx context.Context) error {
	return consume(ctx, h.bus, events.TopicSystemMetrics, h.handle)
}

func (h *SystemMetrics) handle(payload any) {
	metrics, ok := payload.(*model.MetricsPayload)
	if !ok {
		h.logger.Warnf("dropping unexpected payload type %T", payload)
		return
	}
	if metrics.MetricName == "" || metrics.ModuleName == "" {
		h.logger.Warn("dropping metrics payload without a name")
		return
	}

	tags := map[string]string{
		"metric_name": metrics.MetricName,
		"module_name": metrics.ModuleName,
	}
	fields := map[string]any{
		"rate":         metrics.Rate,
		"errors":       metrics.Errors,
		"duration":     metrics.Duration,
		"bytes":        metrics.Bytes,
		"client_count": int64(metrics.ClientCount),
	}

	h.handled++
	h.bus.Publish(events.TopicStorageInfluxDB,
		model.NewSinglePayload(systemMetricsMeasurement, tags, fields, time.Now().Unix()))
}
