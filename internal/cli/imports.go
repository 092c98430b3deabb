package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/mgutz/ansi"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/weatherflow-collector/internal/collector"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/handler"
	"github.com/mmr-tortoise/weatherflow-collector/internal/logging"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
	"github.com/mmr-tortoise/weatherflow-collector/internal/processor"
	"github.com/mmr-tortoise/weatherflow-collector/internal/station"
	"github.com/mmr-tortoise/weatherflow-collector/internal/storage"
	"github.com/mmr-tortoise/weatherflow-collector/internal/wfapi"
)

// Drain polling for the one-shot pipeline: the run is considered
// settled once the composite progress counter holds still for the
// whole window.
const (
	drainPollInterval = 100 * time.Millisecond
	drainSettleWindow = time.Second
)

// NewImportCommand creates the "import" cobra command.
func NewImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Backfill historical observations",
		Long: `Backfill historical observations into storage.

For every enabled station the import reads the first and last
observation days from the station stats endpoint, then fetches each day
as minute-bucketed observations and writes the batches to storage with
their original timestamps. Days that fail to fetch are logged and
skipped.

This runs the collection pipeline once and exits; it can take a long
time for stations with years of history.

Examples:
  weatherflow-collector import
  weatherflow-collector import --config /etc/weatherflow/config.yml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context())
		},
	}

	return cmd
}

// runImport assembles a reduced pipeline (importer, processor, import
// handler, storage) and runs it to completion. The bus decouples the
// fetch side from the write side, so after the fetches finish the
// command waits for the in-flight messages to drain before tearing the
// consumers down.
func runImport(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.API.Token == "" {
		return model.NewCLIError(model.ExitConfigError,
			"api.token is required for import (set WEATHERFLOW_COLLECTOR_API_TOKEN)")
	}
	if !cfg.InfluxDB.Enabled && !cfg.Storage.File.Enabled {
		return model.NewCLIError(model.ExitConfigError,
			"no storage enabled: enable influxdb or file storage before importing")
	}

	logger := newLogger(cfg)
	log := logging.ForModule(logger, "import")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(cfg.Events.BufferSize, logging.ForModule(logger, "events"))
	client := wfapi.NewClient(cfg, bus, logging.ForModule(logger, "http_fetch"))
	registry := station.NewRegistry(client, cfg.Stations.OverridesFile,
		logging.ForModule(logger, "station_registry"))

	if err := registry.Refresh(ctx); err != nil {
		return model.WrapCLIError(model.ExitAPIError, "failed to load station metadata", err)
	}

	var influx *storage.InfluxDB
	if cfg.InfluxDB.Enabled {
		influx = storage.NewInfluxDB(cfg, bus, logging.ForModule(logger, "storage_influxdb"))
		if err := influx.Ping(ctx); err != nil {
			return err
		}
	}
	var files *storage.FileStore
	if cfg.Storage.File.Enabled {
		files = storage.NewFileStore(cfg, bus, logging.ForModule(logger, "storage_file"))
	}

	proc := processor.New(bus, registry, logging.ForModule(logger, "processor"))
	importHandler := handler.NewImport(bus, logging.ForModule(logger, "handler_import"))
	importer := collector.NewImportCollector(cfg, client, registry, bus,
		logging.ForModule(logger, model.CollectorRestImport.String()))

	pipelineCtx, cancelPipeline := context.WithCancel(ctx)
	defer cancelPipeline()

	group, groupCtx := errgroup.WithContext(pipelineCtx)
	group.Go(func() error { return proc.Run(groupCtx) })
	group.Go(func() error { return importHandler.Run(groupCtx) })
	if influx != nil {
		group.Go(func() error { return influx.Run(groupCtx) })
	}
	if files != nil {
		group.Go(func() error { return files.Run(groupCtx) })
	}

	runErr := importer.RunOnce(groupCtx)
	if runErr == nil {
		waitForDrain(ctx, bus, influx)
	}

	cancelPipeline()
	if err := group.Wait(); err != nil && runErr == nil {
		runErr = err
	}

	bus.Close()
	if influx != nil {
		influx.Close()
	}

	imported, failed := importer.DaysImported(), importer.DaysFailed()
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return model.NewCLIError(model.ExitGeneralError,
				fmt.Sprintf("import interrupted after %d days", imported))
		}
		return model.WrapCLIError(model.ExitAPIError, "historical import failed", runErr)
	}

	log.WithFields(logrus.Fields{
		"days_imported": imported,
		"days_failed":   failed,
	}).Info("import complete")

	if IsJSONOutput() {
		printJSON(map[string]any{
			"days_imported": imported,
			"days_failed":   failed,
		})
	} else {
		fmt.Println(ansi.Color(fmt.Sprintf("✓ imported %d days (%d failed)", imported, failed), "green"))
	}
	return nil
}

// waitForDrain polls the pipeline's composite progress counter until it
// stops moving for a full settle window, so messages buffered on the
// bus finish their trip through processor, handler, and storage before
// the consumers are cancelled.
func waitForDrain(ctx context.Context, bus *events.Bus, influx *storage.InfluxDB) {
	progress := func() uint64 {
		total := bus.Delivered(events.TopicCollectorData) +
			bus.Delivered(events.TopicProcessedData) +
			bus.Delivered(events.TopicStorageInfluxDB)
		if influx != nil {
			total += influx.Consumed()
		}
		return total
	}

	last := progress()
	settledAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(drainPollInterval):
		}

		current := progress()
		if current != last {
			last = current
			settledAt = time.Now()
			continue
		}
		if time.Since(settledAt) >= drainSettleWindow {
			return
		}
	}
}
