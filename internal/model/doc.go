// Package model defines the domain types and value objects shared across
// the weatherflow-collector.
//
// This package contains pure data structures with no external dependencies:
// the event payloads that travel the in-process bus (Message, StoragePayload,
// MetricsPayload), station metadata (StationInfo), and the identifiers used
// to tag observation series (CollectorType).
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
