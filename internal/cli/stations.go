package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/weatherflow-collector/internal/logging"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
	"github.com/mmr-tortoise/weatherflow-collector/internal/station"
	"github.com/mmr-tortoise/weatherflow-collector/internal/wfapi"
)

// NewStationsCommand creates the "stations" cobra command.
func NewStationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stations",
		Short: "List the stations and devices the daemon would poll",
		Long: `List the stations and devices visible to the configured API token.

The listing reflects the station overrides file when one is configured,
so the ENABLED column shows exactly what the daemon would poll.

Examples:
  weatherflow-collector stations
  weatherflow-collector stations --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStations(cmd.Context())
		},
	}

	return cmd
}

func runStations(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.API.Token == "" {
		return model.NewCLIError(model.ExitConfigError,
			"api.token is required to list stations (set WEATHERFLOW_COLLECTOR_API_TOKEN)")
	}

	logger := newLogger(cfg)

	// Metrics have nowhere to go in a one-shot command, so the client
	// runs without a bus.
	client := wfapi.NewClient(cfg, nil, logging.ForModule(logger, "http_fetch"))
	registry := station.NewRegistry(client, cfg.Stations.OverridesFile,
		logging.ForModule(logger, "station_registry"))

	if err := registry.Refresh(ctx); err != nil {
		return model.WrapCLIError(model.ExitAPIError, "failed to fetch stations", err)
	}

	printStationsResult(registry.Snapshot())
	return nil
}

func printStationsResult(stations []station.Station) {
	if IsJSONOutput() {
		printStationsResultJSON(stations)
	} else {
		printStationsResultText(stations)
	}
}

func printStationsResultJSON(stations []station.Station) {
	type resultJSON struct {
		Count    int               `json:"count"`
		Stations []station.Station `json:"stations"`
	}

	result := resultJSON{
		Count:    len(stations),
		Stations: make([]station.Station, 0, len(stations)),
	}
	result.Stations = append(result.Stations, stations...)

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printStationsResultText renders one row per device under its station:
//
//	STATION              ID      DEVICE            TYPE  SERIAL           ENABLED
//	Backyard             2440    Backyard Tempest  ST    ST-00012345      yes
//	Backyard             2440    hub               HB    HB-00001234      yes
func printStationsResultText(stations []station.Station) {
	if len(stations) == 0 {
		fmt.Println("No stations found for this token.")
		return
	}

	fmt.Printf("%-20s %-7s %-20s %-5s %-16s %s\n",
		"STATION", "ID", "DEVICE", "TYPE", "SERIAL", "ENABLED")
	for _, st := range stations {
		if len(st.Devices) == 0 {
			fmt.Printf("%-20s %-7d %-20s %-5s %-16s %s\n",
				st.Name, st.StationID, "-", "-", "-", FormatEnabled(st.Enabled))
			continue
		}
		for _, device := range st.Devices {
			name := device.Name
			if name == "" {
				name = "-"
			}
			fmt.Printf("%-20s %-7d %-20s %-5s %-16s %s\n",
				st.Name,
				st.StationID,
				name,
				device.DeviceType,
				device.SerialNumber,
				FormatEnabled(st.Enabled && device.Enabled),
			)
		}
	}
}

// FormatEnabled renders an effective enabled state for the table.
func FormatEnabled(enabled bool) string {
	if enabled {
		return "yes"
	}
	return "no"
}
