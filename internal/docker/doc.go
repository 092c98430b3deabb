// Package docker wraps the Docker Engine SDK for the collector's build
// and deployment commands.
//
// It provides:
//   - client initialization with automatic socket detection
//     (Linux, macOS, Windows) and daemon liveness checks
//   - direct image builds through the engine API for the optimized
//     multi-stage descriptor
//   - docker compose invocations (build, up, down) with environment
//     variable passthrough for tag substitution
//   - label-based discovery of built collector images
//
// The package uses github.com/docker/docker/client as the underlying
// SDK, with API version negotiation enabled for broad compatibility.
package docker
