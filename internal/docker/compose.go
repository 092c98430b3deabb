package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// Compose operations shell out to the docker CLI rather than the SDK:
// compose is a CLI plugin with no engine API, and the plugin handles
// YAML interpolation, project naming, and network setup for us. The
// envVars map is how the image tag reaches the compose file's
// ${WEATHERFLOW_COLLECTOR_IMAGE_TAG:-latest} substitution.

// ComposeBuild runs "docker compose build" in projectDir.
func ComposeBuild(ctx context.Context, projectDir string, composeFiles []string, envVars map[string]string) error {
	args := buildComposeArgs(composeFiles)
	args = append(args, "build")

	return runCompose(ctx, projectDir, args, envVars)
}

// ComposeUp starts the collector stack detached.
func ComposeUp(ctx context.Context, projectDir string, composeFiles []string, envVars map[string]string) error {
	args := buildComposeArgs(composeFiles)
	args = append(args, "up", "-d")

	return runCompose(ctx, projectDir, args, envVars)
}

// ComposeDown stops and removes the stack's containers and networks.
// removeVolumes additionally deletes named and anonymous volumes, which
// wipes any file storage kept inside the stack.
func ComposeDown(ctx context.Context, projectDir string, composeFiles []string, removeVolumes bool, envVars map[string]string) error {
	args := buildComposeArgs(composeFiles)
	args = append(args, "down")
	if removeVolumes {
		args = append(args, "-v")
	}

	return runCompose(ctx, projectDir, args, envVars)
}

// buildComposeArgs assembles the leading arguments shared by every
// compose invocation. Each file gets its own -f flag; compose merges
// them in order. An empty list lets compose resolve docker-compose.yml
// from the working directory.
func buildComposeArgs(composeFiles []string) []string {
	args := make([]string, 0, len(composeFiles)*2+2)
	args = append(args, "compose")
	for _, f := range composeFiles {
		args = append(args, "-f", f)
	}
	return args
}

// runCompose executes a docker compose command in projectDir, adding
// envVars on top of the inherited environment. Output is captured and
// surfaced only on failure.
func runCompose(ctx context.Context, projectDir string, args []string, envVars map[string]string) error {
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = projectDir

	cmd.Env = os.Environ()
	for k, v := range envVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("docker compose failed: %s", strings.TrimSpace(string(output))),
			err,
		)
	}

	return nil
}
