package cli

import (
	"fmt"

	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// NewConfigCommand creates the "config" command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and scaffold configuration",
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand())

	return cmd
}

// configInitFlags holds the flag values for "config init".
type configInitFlags struct {
	// output is where the starter file is written.
	output string
}

func newConfigInitCommand() *cobra.Command {
	flags := &configInitFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented starter config file",
		Long: `Write a commented starter configuration file with every setting at
its default value. Existing files are never overwritten.

Examples:
  weatherflow-collector config init
  weatherflow-collector config init --output /etc/weatherflow/config.yml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "weatherflow-collector.yml",
		"Path for the generated file")

	return cmd
}

func runConfigInit(flags *configInitFlags) error {
	if err := config.WriteStarter(flags.output); err != nil {
		return err
	}

	if IsJSONOutput() {
		printJSON(map[string]any{"path": flags.output})
	} else {
		fmt.Println(ansi.Color("✓ wrote "+flags.output, "green"))
	}
	return nil
}

func newConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration as resolved from defaults, the --config file,
and the environment. Secrets are redacted. The output keys match the
config file format, so it can be pasted back into one.

Examples:
  weatherflow-collector config show
  weatherflow-collector --config config.yml config show --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

// runConfigShow prints without validating: operators reach for it
// precisely when the daemon refuses a config, so it must not refuse
// the same way.
func runConfigShow() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	settings, err := cfg.Redacted().Settings()
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		printJSON(settings)
		return nil
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "failed to render configuration", err)
	}
	fmt.Print(string(data))
	return nil
}
