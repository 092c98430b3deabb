package cli

import (
	"context"
	"fmt"

	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/weatherflow-collector/internal/docker"
)

// downFlags holds the flag values for the down command.
type downFlags struct {
	// removeVolumes also deletes the stack's named volumes, losing any
	// file-storage history kept inside them.
	removeVolumes bool
}

// NewDownCommand creates the "down" cobra command.
func NewDownCommand() *cobra.Command {
	flags := &downFlags{}

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the collector stack",
		Long: `Stop and remove the collector stack via docker compose.

Containers and the compose network are removed; volumes survive unless
--volumes is given.

Examples:
  weatherflow-collector down
  weatherflow-collector down --volumes`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDown(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.removeVolumes, "volumes", false,
		"Also remove named volumes declared by the stack")

	return cmd
}

func runDown(ctx context.Context, flags *downFlags) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}

	stop := startSpinner("stopping collector stack")
	err = docker.ComposeDown(ctx, ".", nil, flags.removeVolumes, tagEnv("latest"))
	stop()
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		printJSON(map[string]any{
			"status":          "stopped",
			"volumes_removed": flags.removeVolumes,
		})
	} else {
		fmt.Println(ansi.Color("✓ collector stack is down", "green"))
	}
	return nil
}
