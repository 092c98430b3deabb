package docker

import (
	"time"
)

// Label keys applied to every image the build command produces. The
// shared prefix namespaces them away from labels set by other tools and
// makes the managed set discoverable with a single API filter.
const (
	// LabelPrefix is the common prefix for all collector image labels.
	LabelPrefix = "weatherflow."

	// LabelManagedBy marks an image as built by this CLI. It is the
	// discovery key for the images command.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelVersion records the collector version the image carries.
	LabelVersion = LabelPrefix + "version"

	// LabelTag records the tag requested at build time. It can differ
	// from the image reference when the image is retagged later.
	LabelTag = LabelPrefix + "tag"

	// LabelCreatedAt records the build time, RFC3339 in UTC.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the value stored under LabelManagedBy.
const ManagedByValue = "weatherflow-collector"

// BuildImageLabels constructs the label set baked into a collector
// image at build time.
func BuildImageLabels(version, tag string, now time.Time) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelVersion:   version,
		LabelTag:       tag,
		LabelCreatedAt: now.UTC().Format(time.RFC3339),
	}
}
