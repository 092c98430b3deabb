package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/weatherflow-collector/internal/docker"
)

// imageRepo is the repository part of every image reference this tool
// builds.
const imageRepo = "weatherflow-collector"

// imageTagEnv is the compose interpolation variable that selects the
// image tag, referenced as ${WEATHERFLOW_COLLECTOR_IMAGE_TAG:-latest}
// in docker-compose.yml.
const imageTagEnv = "WEATHERFLOW_COLLECTOR_IMAGE_TAG"

// tagEnv renders the extra environment passed to compose invocations so
// build, up, and down all act on the same image reference.
func tagEnv(tag string) map[string]string {
	return map[string]string{imageTagEnv: tag}
}

// buildFlags holds the flag values for the build command.
type buildFlags struct {
	// optimized selects the multi-stage Dockerfile.optimized descriptor
	// and builds it directly through the engine API instead of compose.
	optimized bool

	// tag is the image tag to apply, default "latest".
	tag string
}

// NewBuildCommand creates the "build" cobra command.
func NewBuildCommand() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the collector container image",
		Long: `Build the weatherflow-collector container image.

The default path builds through docker compose using the repository
docker-compose.yml. With --optimized the multi-stage
Dockerfile.optimized is built directly through the Docker engine,
producing a smaller static-binary image.

Examples:
  weatherflow-collector build
  weatherflow-collector build --tag v5.1.2
  weatherflow-collector build --optimized`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.optimized, "optimized", false,
		"Build the multi-stage optimized image directly through the engine")
	cmd.Flags().StringVar(&flags.tag, "tag", "latest", "Image tag to apply")

	return cmd
}

// runBuild verifies the Docker engine is reachable, then runs either
// the compose build (default) or the direct optimized build. Both
// failure modes exit 1; the engine check catches a stopped daemon
// before any build output scrolls by.
func runBuild(ctx context.Context, flags *buildFlags) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}

	reference := fmt.Sprintf("%s:%s", imageRepo, flags.tag)

	if flags.optimized {
		err = buildOptimized(ctx, cli, reference, flags.tag)
	} else {
		err = buildCompose(ctx, flags.tag)
	}
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		printJSON(map[string]any{
			"image":     reference,
			"optimized": flags.optimized,
		})
	} else {
		fmt.Println(ansi.Color("✓ built "+reference, "green"))
	}
	return nil
}

// buildCompose runs `docker compose build` with the tag exported so the
// compose file's interpolation picks it up.
func buildCompose(ctx context.Context, tag string) error {
	stop := startSpinner(fmt.Sprintf("building %s:%s via compose", imageRepo, tag))
	defer stop()

	return docker.ComposeBuild(ctx, ".", nil, tagEnv(tag))
}

// buildOptimized builds Dockerfile.optimized once through the engine
// API. With --verbose the engine's step output streams to stdout;
// otherwise a spinner covers the wait.
func buildOptimized(ctx context.Context, cli *docker.Client, reference, tag string) error {
	var progress io.Writer
	if verbose && !IsJSONOutput() {
		progress = os.Stdout
	} else {
		stop := startSpinner("building " + reference)
		defer stop()
	}

	return docker.BuildImage(ctx, cli, docker.BuildImageOptions{
		ContextDir: ".",
		Dockerfile: "Dockerfile.optimized",
		Tags:       []string{reference},
		Labels:     docker.BuildImageLabels(Version, tag, time.Now()),
		Progress:   progress,
	})
}

// startSpinner shows an animated progress line until the returned stop
// function is called. JSON mode stays quiet: machine-readable output
// must not be interleaved with terminal animation.
func startSpinner(message string) func() {
	if IsJSONOutput() {
		return func() {}
	}

	fmt.Println(ansi.Color(message, "yellow+b"))
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Start()
	return s.Stop
}
