package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/archive"

	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// BuildImageOptions describes one direct engine build.
type BuildImageOptions struct {
	// ContextDir is tarred up as the build context.
	ContextDir string

	// Dockerfile is the descriptor path relative to ContextDir.
	Dockerfile string

	// Tags are the references applied to the built image.
	Tags []string

	// Labels are baked into the image so it can be discovered later.
	Labels map[string]string

	// Progress receives the engine's build output. nil discards it; the
	// stream is drained either way, since the engine aborts a build
	// whose response body stops being read.
	Progress io.Writer
}

// BuildImage builds a Dockerfile directly through the engine API,
// bypassing compose. This is the --optimized path: one explicit build
// of the multi-stage descriptor.
func BuildImage(ctx context.Context, cli *Client, opts BuildImageOptions) error {
	buildContext, err := archive.TarWithOptions(opts.ContextDir, &archive.TarOptions{})
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to prepare the build context", err)
	}
	defer buildContext.Close()

	resp, err := cli.Inner().ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       opts.Tags,
		Dockerfile: opts.Dockerfile,
		Remove:     true,
		Labels:     opts.Labels,
	})
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "image build request failed", err)
	}
	defer resp.Body.Close()

	return decodeBuildStream(resp.Body, opts.Progress)
}

// buildStreamLine is one JSON message of the engine's build output.
// Failures arrive in-band as an "error" message, not as an HTTP error.
type buildStreamLine struct {
	Stream string `json:"stream"`
	Error  string `json:"error"`
}

func decodeBuildStream(r io.Reader, progress io.Writer) error {
	dec := json.NewDecoder(r)
	for {
		var line buildStreamLine
		if err := dec.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return model.WrapCLIError(model.ExitGeneralError, "failed to read build output", err)
		}

		if line.Error != "" {
			return model.NewCLIError(
				model.ExitGeneralError,
				fmt.Sprintf("image build failed: %s", strings.TrimSpace(line.Error)),
			)
		}
		if progress != nil && line.Stream != "" {
			fmt.Fprint(progress, line.Stream)
		}
	}
}

// ListCollectorImages returns the locally built collector images, newest
// first. Discovery is label-based: only images carrying the managed-by
// label are returned, so unrelated images on the host never show up.
func ListCollectorImages(ctx context.Context, cli *Client) ([]model.ImageInfo, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	summaries, err := cli.Inner().ImageList(ctx, image.ListOptions{Filters: filterArgs})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitGeneralError,
			"failed to list collector images",
			err,
		)
	}

	result := make([]model.ImageInfo, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, summaryToInfo(s))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// summaryToInfo maps an engine image summary onto the domain shape. The
// ID is shortened to the familiar 12 hex characters.
func summaryToInfo(s image.Summary) model.ImageInfo {
	reference := ""
	if len(s.RepoTags) > 0 {
		reference = s.RepoTags[0]
	}

	id := strings.TrimPrefix(s.ID, "sha256:")
	if len(id) > 12 {
		id = id[:12]
	}

	return model.ImageInfo{
		ID:        id,
		Reference: reference,
		Version:   s.Labels[LabelVersion],
		Tag:       s.Labels[LabelTag],
		CreatedAt: time.Unix(s.Created, 0).UTC(),
		Size:      s.Size,
		Labels:    s.Labels,
	}
}
