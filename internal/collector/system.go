package collector

import (
	"context"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// systemHostMeasurement holds the host telemetry samples.
const systemHostMeasurement = "weatherflow_system_host"

// SystemCollector samples the host the collector runs on: CPU, load,
// memory, disk, and network counters. Samples skip the weather pipeline
// and go straight to the storage topic since there is no station to
// attach them to.
type SystemCollector struct {
	base
	interval time.Duration
}

// NewSystemCollector builds the host telemetry sampler.
func NewSystemCollector(cfg *config.Config, bus *events.Bus, logger *logrus.Entry) *SystemCollector {
	return &SystemCollector{
		base: base{
			bus:        bus,
			logger:     logger,
			moduleName: model.CollectorSystem.String(),
		},
		interval: cfg.Collector.System.Interval,
	}
}

// Name implements Collector.
func (c *SystemCollector) Name() string { return c.moduleName }

// Run samples host telemetry each interval until ctx is cancelled.
func (c *SystemCollector) Run(ctx context.Context) error {
	return runCycles(ctx, c.logger, c.interval, c.sample)
}

func (c *SystemCollector) sample(ctx context.Context) {
	start := time.Now()
	fields := make(map[string]any)
	tags := map[string]string{
		"collector_type": c.moduleName,
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		tags["host"] = info.Hostname
		fields["uptime_seconds"] = int64(info.Uptime)
	} else {
		c.logger.WithError(err).Warn("failed to read host info")
	}

	// Percent with a zero interval compares against the previous call,
	// so the first sample after startup reads as zero.
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		fields["cpu_percent"] = round2(percents[0])
	} else if err != nil {
		c.logger.WithError(err).Warn("failed to read cpu usage")
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		fields["load_1"] = avg.Load1
		fields["load_5"] = avg.Load5
		fields["load_15"] = avg.Load15
	} else {
		c.logger.WithError(err).Warn("failed to read load average")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		fields["mem_total"] = int64(vm.Total)
		fields["mem_available"] = int64(vm.Available)
		fields["mem_used"] = int64(vm.Used)
		fields["mem_used_percent"] = round2(vm.UsedPercent)
	} else {
		c.logger.WithError(err).Warn("failed to read memory usage")
	}

	if usage, err := disk.UsageWithContext(ctx, "/"); err == nil {
		fields["disk_total"] = int64(usage.Total)
		fields["disk_free"] = int64(usage.Free)
		fields["disk_used"] = int64(usage.Used)
		fields["disk_used_percent"] = round2(usage.UsedPercent)
	} else {
		c.logger.WithError(err).Warn("failed to read disk usage")
	}

	if counters, err := gopsnet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		fields["net_bytes_sent"] = int64(counters[0].BytesSent)
		fields["net_bytes_recv"] = int64(counters[0].BytesRecv)
	} else if err != nil {
		c.logger.WithError(err).Warn("failed to read network counters")
	}

	if len(fields) == 0 {
		c.errors++
		return
	}

	c.requests++
	c.bus.Publish(events.TopicStorageInfluxDB,
		model.NewSinglePayload(systemHostMeasurement, tags, fields, time.Now().Unix()))
	c.publishMetrics("handle_system_sample", time.Since(start))
}

// round2 rounds to two decimal places for percent-style fields.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
