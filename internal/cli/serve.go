package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/weatherflow-collector/internal/collector"
	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/handler"
	"github.com/mmr-tortoise/weatherflow-collector/internal/logging"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
	"github.com/mmr-tortoise/weatherflow-collector/internal/port"
	"github.com/mmr-tortoise/weatherflow-collector/internal/processor"
	"github.com/mmr-tortoise/weatherflow-collector/internal/server"
	"github.com/mmr-tortoise/weatherflow-collector/internal/station"
	"github.com/mmr-tortoise/weatherflow-collector/internal/storage"
	"github.com/mmr-tortoise/weatherflow-collector/internal/wfapi"
)

// NewServeCommand creates the "serve" cobra command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the collection daemon",
		Long: `Run the long-lived collection daemon.

Collectors publish raw observations onto the event bus, the processor
validates and enriches them, handlers turn them into measurement
points, and storage writes them out. The HTTP provider exposes health,
station, and current-conditions endpoints plus a websocket feed.

The daemon runs until SIGINT or SIGTERM, then drains and exits.

Examples:
  weatherflow-collector serve
  weatherflow-collector serve --config /etc/weatherflow/config.yml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)

	container, err := buildContainer(cfg, logger)
	if err != nil {
		return err
	}

	return container.Invoke(func(d daemon) error {
		return d.run(ctx)
	})
}

// buildContainer wires every daemon component into a dig container.
// Components that are disabled by configuration resolve to nil so the
// rest of the graph still constructs; the runner skips them.
func buildContainer(cfg *config.Config, logger *logrus.Logger) (*dig.Container, error) {
	container := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		func() *logrus.Logger { return logger },
		func(cfg *config.Config, logger *logrus.Logger) *events.Bus {
			return events.NewBus(cfg.Events.BufferSize, logging.ForModule(logger, "events"))
		},
		func(cfg *config.Config, bus *events.Bus, logger *logrus.Logger) *wfapi.Client {
			return wfapi.NewClient(cfg, bus, logging.ForModule(logger, "http_fetch"))
		},
		func(cfg *config.Config, client *wfapi.Client, logger *logrus.Logger) *station.Registry {
			return station.NewRegistry(client, cfg.Stations.OverridesFile,
				logging.ForModule(logger, "station_registry"))
		},
		func(bus *events.Bus, stations *station.Registry, logger *logrus.Logger) *processor.Processor {
			return processor.New(bus, stations, logging.ForModule(logger, "processor"))
		},
		func(bus *events.Bus, logger *logrus.Logger) *handler.CurrentConditions {
			return handler.NewCurrentConditions(bus, logging.ForModule(logger, "handler_conditions"))
		},
		func(bus *events.Bus, logger *logrus.Logger) *handler.Forecast {
			return handler.NewForecast(bus, logging.ForModule(logger, "handler_forecast"))
		},
		func(bus *events.Bus, logger *logrus.Logger) *handler.SystemMetrics {
			return handler.NewSystemMetrics(bus, logging.ForModule(logger, "handler_system_metrics"))
		},
		func(bus *events.Bus, logger *logrus.Logger) *handler.Import {
			return handler.NewImport(bus, logging.ForModule(logger, "handler_import"))
		},
		func(cfg *config.Config, bus *events.Bus, logger *logrus.Logger) *storage.InfluxDB {
			if !cfg.InfluxDB.Enabled {
				return nil
			}
			return storage.NewInfluxDB(cfg, bus, logging.ForModule(logger, "storage_influxdb"))
		},
		func(cfg *config.Config, bus *events.Bus, logger *logrus.Logger) *storage.FileStore {
			if !cfg.Storage.File.Enabled {
				return nil
			}
			return storage.NewFileStore(cfg, bus, logging.ForModule(logger, "storage_file"))
		},
		func(cfg *config.Config, stations *station.Registry, bus *events.Bus, logger *logrus.Logger) *collector.UDPCollector {
			if !cfg.Collector.UDP.Enabled {
				return nil
			}
			return collector.NewUDPCollector(cfg, stations, bus,
				logging.ForModule(logger, model.CollectorUDP.String()))
		},
		func(client *wfapi.Client, stations *station.Registry, cfg *config.Config, bus *events.Bus, logger *logrus.Logger) *collector.WebsocketCollector {
			if !cfg.Collector.Websocket.Enabled {
				return nil
			}
			return collector.NewWebsocketCollector(client, stations, bus,
				logging.ForModule(logger, model.CollectorWebsocket.String()))
		},
		func(cfg *config.Config, client *wfapi.Client, stations *station.Registry, bus *events.Bus, logger *logrus.Logger) *collector.DeviceObservationsCollector {
			if !cfg.Collector.RestObservationsDevice.Enabled {
				return nil
			}
			return collector.NewDeviceObservationsCollector(cfg, client, stations, bus,
				logging.ForModule(logger, model.CollectorRestObservationsDevice.String()))
		},
		func(cfg *config.Config, client *wfapi.Client, stations *station.Registry, bus *events.Bus, logger *logrus.Logger) *collector.StationObservationsCollector {
			if !cfg.Collector.RestObservationsStation.Enabled {
				return nil
			}
			return collector.NewStationObservationsCollector(cfg, client, stations, bus,
				logging.ForModule(logger, model.CollectorRestObservationsStation.String()))
		},
		func(cfg *config.Config, client *wfapi.Client, stations *station.Registry, bus *events.Bus, logger *logrus.Logger) *collector.ForecastsCollector {
			if !cfg.Collector.RestForecasts.Enabled {
				return nil
			}
			return collector.NewForecastsCollector(cfg, client, stations, bus,
				logging.ForModule(logger, model.CollectorRestForecasts.String()))
		},
		func(cfg *config.Config, bus *events.Bus, logger *logrus.Logger) *collector.SystemCollector {
			if !cfg.Collector.System.Enabled {
				return nil
			}
			return collector.NewSystemCollector(cfg, bus,
				logging.ForModule(logger, model.CollectorSystem.String()))
		},
		func(cfg *config.Config, bus *events.Bus, stations *station.Registry, influx *storage.InfluxDB, files *storage.FileStore, logger *logrus.Logger) *server.Server {
			if !cfg.Server.Enabled {
				return nil
			}
			var components []server.Component
			if influx != nil {
				components = append(components, influx)
			}
			if files != nil {
				components = append(components, files)
			}
			return server.New(cfg, bus, stations, Version, components,
				logging.ForModule(logger, "http_server"))
		},
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, model.WrapCLIError(model.ExitGeneralError, "failed to wire daemon components", err)
		}
	}

	return container, nil
}

// daemon bundles the resolved components the serve command supervises.
type daemon struct {
	dig.In

	Cfg        *config.Config
	Logger     *logrus.Logger
	Bus        *events.Bus
	Stations   *station.Registry
	Processor  *processor.Processor
	Conditions *handler.CurrentConditions
	Forecast   *handler.Forecast
	Metrics    *handler.SystemMetrics
	Importer   *handler.Import
	Influx     *storage.InfluxDB
	Files      *storage.FileStore
	UDP        *collector.UDPCollector
	Websocket  *collector.WebsocketCollector
	Devices    *collector.DeviceObservationsCollector
	StationObs *collector.StationObservationsCollector
	Forecasts  *collector.ForecastsCollector
	System     *collector.SystemCollector
	Server     *server.Server
}

// runnable is one supervised goroutine of the daemon.
type runnable struct {
	name string
	run  func(context.Context) error
}

// run starts every enabled component under one errgroup and blocks
// until a signal arrives or a component fails. All components treat
// context cancellation as a clean stop, so Wait returns nil on an
// ordinary shutdown.
func (d daemon) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logging.ForModule(d.Logger, "serve")
	log.WithFields(logrus.Fields{
		"version": Version,
		"commit":  Commit,
	}).Info("starting weatherflow-collector")

	if err := d.preflight(ctx, log); err != nil {
		return err
	}

	runnables := d.runnables()
	names := make([]string, 0, len(runnables))
	for _, r := range runnables {
		names = append(names, r.name)
	}
	log.WithField("modules", names).Info("modules starting")

	group, groupCtx := errgroup.WithContext(ctx)
	for _, r := range runnables {
		group.Go(func() error { return r.run(groupCtx) })
	}
	if d.Cfg.Stations.Watch {
		group.Go(func() error { return d.Stations.Watch(groupCtx) })
	}

	err := group.Wait()

	d.Bus.Close()
	if d.Influx != nil {
		d.Influx.Close()
	}

	if err != nil {
		log.WithError(err).Error("daemon stopped on failure")
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// preflight fails fast on conditions that would otherwise surface as
// confusing mid-startup errors: busy listen addresses, an unreachable
// InfluxDB, an API that will not hand out station metadata.
func (d daemon) preflight(ctx context.Context, log *logrus.Entry) error {
	var endpoints []port.Endpoint
	if d.Cfg.Server.Enabled {
		endpoints = append(endpoints, port.Endpoint{
			Name: "http_server", Network: "tcp", Address: d.Cfg.Server.ListenAddress,
		})
	}
	if d.Cfg.Collector.UDP.Enabled {
		endpoints = append(endpoints, port.Endpoint{
			Name: "udp_collector", Network: "udp", Address: d.Cfg.Collector.UDP.ListenAddress,
		})
	}
	if err := port.NewScanner().Check(endpoints); err != nil {
		return err
	}

	if d.Influx != nil {
		if err := d.Influx.Ping(ctx); err != nil {
			return err
		}
	}

	// Without a token the registry cannot resolve stations; UDP and file
	// storage still work, they just run without station metadata.
	if d.Cfg.API.Token == "" {
		log.Warn("no API token configured, running without station metadata")
		return nil
	}
	if err := d.Stations.Refresh(ctx); err != nil {
		return model.WrapCLIError(model.ExitAPIError, "failed to load station metadata", err)
	}
	return nil
}

// runnables returns the enabled components in pipeline order. The
// processor and handlers always run; collectors, storage, and the HTTP
// provider depend on configuration.
func (d daemon) runnables() []runnable {
	list := []runnable{
		{"processor", d.Processor.Run},
		{"handler_conditions", d.Conditions.Run},
		{"handler_forecast", d.Forecast.Run},
		{"handler_system_metrics", d.Metrics.Run},
		{"handler_import", d.Importer.Run},
	}

	if d.Influx != nil {
		list = append(list, runnable{d.Influx.Name(), d.Influx.Run})
	}
	if d.Files != nil {
		list = append(list, runnable{d.Files.Name(), d.Files.Run})
	}
	if d.UDP != nil {
		list = append(list, runnable{d.UDP.Name(), d.UDP.Run})
	}
	if d.Websocket != nil {
		list = append(list, runnable{d.Websocket.Name(), d.Websocket.Run})
	}
	if d.Devices != nil {
		list = append(list, runnable{d.Devices.Name(), d.Devices.Run})
	}
	if d.StationObs != nil {
		list = append(list, runnable{d.StationObs.Name(), d.StationObs.Run})
	}
	if d.Forecasts != nil {
		list = append(list, runnable{d.Forecasts.Name(), d.Forecasts.Run})
	}
	if d.System != nil {
		list = append(list, runnable{d.System.Name(), d.System.Run})
	}
	if d.Server != nil {
		list = append(list, runnable{d.Server.Name(), d.Server.Run})
	}

	return list
}
