package cli

import (
	"context"
	"fmt"

	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/weatherflow-collector/internal/docker"
)

// upFlags holds the flag values for the up command.
type upFlags struct {
	// tag selects which built image the stack runs.
	tag string
}

// NewUpCommand creates the "up" cobra command.
func NewUpCommand() *cobra.Command {
	flags := &upFlags{}

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start the collector stack",
		Long: `Start the collector stack in the background via docker compose.

The stack is defined by the repository docker-compose.yml; --tag picks
which previously built image to run.

Examples:
  weatherflow-collector up
  weatherflow-collector up --tag v5.1.2`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.tag, "tag", "latest", "Image tag to run")

	return cmd
}

func runUp(ctx context.Context, flags *upFlags) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}

	stop := startSpinner(fmt.Sprintf("starting %s:%s", imageRepo, flags.tag))
	err = docker.ComposeUp(ctx, ".", nil, tagEnv(flags.tag))
	stop()
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		printJSON(map[string]any{
			"image":  fmt.Sprintf("%s:%s", imageRepo, flags.tag),
			"status": "running",
		})
	} else {
		fmt.Println(ansi.Color("✓ collector stack is up", "green"))
	}
	return nil
}
