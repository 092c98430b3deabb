// Package main is the entry point for the weatherflow-collector binary.
//
// All functionality lives in internal/cli; this file only injects the
// build-time version variables and runs the root command.
package main

import (
	"github.com/mmr-tortoise/weatherflow-collector/internal/cli"
)

// version, commit, and date are set at build time via ldflags, e.g.
//
//	go build -ldflags "-X main.version=5.1.2 -X main.commit=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
