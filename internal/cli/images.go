package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/weatherflow-collector/internal/docker"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// NewImagesCommand creates the "images" cobra command.
func NewImagesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "List built collector images",
		Long: `List locally built collector images, newest first.

Only images carrying the weatherflow.managed-by label are shown, so the
listing never mixes in unrelated images on the host.

Examples:
  weatherflow-collector images
  weatherflow-collector images --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runImages(cmd.Context())
		},
	}

	return cmd
}

func runImages(ctx context.Context) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}

	images, err := docker.ListCollectorImages(ctx, cli)
	if err != nil {
		return err
	}

	printImagesResult(images)
	return nil
}

func printImagesResult(images []model.ImageInfo) {
	if IsJSONOutput() {
		printImagesResultJSON(images)
	} else {
		printImagesResultText(images)
	}
}

// printImagesResultJSON wraps the listing in an "images" key, empty
// slice rather than null when nothing was built yet.
func printImagesResultJSON(images []model.ImageInfo) {
	type resultJSON struct {
		Images []model.ImageInfo `json:"images"`
	}

	result := resultJSON{Images: make([]model.ImageInfo, 0, len(images))}
	result.Images = append(result.Images, images...)

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printImagesResultText renders an aligned table:
//
//	REFERENCE                      IMAGE ID       VERSION   CREATED          SIZE
//	weatherflow-collector:latest   a3f9c2e1b4d6   5.1.2     2 hours ago      52.43MB
func printImagesResultText(images []model.ImageInfo) {
	if len(images) == 0 {
		fmt.Println("No collector images found. Run 'weatherflow-collector build' first.")
		return
	}

	now := time.Now()
	fmt.Printf("%-35s %-14s %-10s %-16s %s\n",
		"REFERENCE", "IMAGE ID", "VERSION", "CREATED", "SIZE")
	for _, img := range images {
		reference := img.Reference
		if reference == "" {
			reference = "<none>"
		}
		version := img.Version
		if version == "" {
			version = "-"
		}
		fmt.Printf("%-35s %-14s %-10s %-16s %s\n",
			reference,
			img.ID,
			version,
			FormatImageAge(img.CreatedAt, now),
			FormatImageSize(img.Size),
		)
	}
}

// FormatImageAge renders a build time the way `docker images` does:
// "2 hours ago". Zero times render as "-".
func FormatImageAge(createdAt, now time.Time) string {
	if createdAt.IsZero() {
		return "-"
	}
	return units.HumanDuration(now.Sub(createdAt)) + " ago"
}

// FormatImageSize renders a byte count in human units ("52.43MB").
func FormatImageSize(size int64) string {
	return units.HumanSize(float64(size))
}
