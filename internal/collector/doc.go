// Package collector contains the data sources feeding the pipeline.
//
// Seven collectors exist: a UDP listener for hub LAN broadcasts, a
// websocket client for cloud streaming, three REST pollers (per-device
// observations, per-station observations, forecasts), a one-shot
// historical importer, and a host telemetry sampler. Each publishes raw
// messages to the collector data topic (or, for host telemetry, straight
// to storage) and reports request counters on the system metrics topic.
//
// Collectors run as goroutines under the daemon's errgroup; each blocks
// in Run until its context is cancelled.
package collector
