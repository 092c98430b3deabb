// Package cli implements the cobra commands for weatherflow-collector.
//
// The same binary serves two audiences: build tooling (build, up, down,
// images) for packaging and deploying the collector container, and the
// runtime commands (serve, import, stations, config) that run inside
// it. Each subcommand lives in its own file and returns a
// *cobra.Command from a New<X>Command constructor.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mgutz/ansi"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/logging"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// Global flag variables bound to cobra persistent flags on the root
// command, available to every subcommand.
var (
	// configFile is the optional YAML configuration file path. Empty
	// means defaults plus environment variables only.
	configFile string

	// jsonOutput switches command output to JSON for machine consumption.
	jsonOutput bool

	// verbose forces debug-level logging regardless of the configured
	// log level.
	verbose bool
)

// Version, Commit, and Date are injected at build time via ldflags from
// the main package.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates and configures the root cobra command. The
// root itself performs no action; subcommands carry the functionality.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "weatherflow-collector",
		Short: "WeatherFlow Tempest data collector",
		Long: `weatherflow-collector gathers observations from WeatherFlow Tempest
stations over UDP broadcast, the REST API, and the data websocket, and
writes them to InfluxDB. The same binary builds and deploys its own
container image.

Run 'weatherflow-collector serve' to start the collection daemon, or
'weatherflow-collector build' to produce the container image.`,

		// Errors are formatted by Execute (text or JSON per --json), so
		// cobra's own printing is disabled.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to a YAML config file (default: environment + built-in defaults)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(NewBuildCommand())
	rootCmd.AddCommand(NewUpCommand())
	rootCmd.AddCommand(NewDownCommand())
	rootCmd.AddCommand(NewImagesCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewImportCommand())
	rootCmd.AddCommand(NewStationsCommand())
	rootCmd.AddCommand(NewConfigCommand())

	return rootCmd
}

// Execute runs the root command and translates errors into OS exit
// codes. CLIErrors carry their own code; anything else exits 1.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError writes an error to stderr in the format selected by the
// --json flag. Stdout stays reserved for successful command output.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]any{
			"error": map[string]any{"message": message},
		}
		if underlying != nil {
			errObj["error"].(map[string]any)["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}

	prefix := ansi.Color("Error:", "red")
	if underlying != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", prefix, message, underlying)
	} else {
		fmt.Fprintf(os.Stderr, "%s %s\n", prefix, message)
	}
}

// IsJSONOutput reports whether the --json flag is set. Subcommands use
// this to pick their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

// loadConfig resolves the effective configuration from defaults, the
// optional --config file, and the environment.
func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}

// newLogger builds the process logger from the resolved configuration.
// --verbose wins over the configured level.
func newLogger(cfg *config.Config) *logrus.Logger {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	return logging.New(logging.Options{
		Level: level,
		JSON:  cfg.Log.Format == "json",
	})
}
