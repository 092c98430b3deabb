// Package config loads and validates the collector configuration.
//
// Settings resolve in the usual precedence order: explicit environment
// variables (prefix WEATHERFLOW_COLLECTOR, dots become underscores), then
// an optional YAML file, then built-in defaults. Every knob has a
// registered default so a bare environment still produces a complete,
// typed Config.
//
// Key responsibilities:
//   - Define the typed Config tree shared by the daemon and the CLI
//   - Resolve values via viper (env + optional file + defaults)
//   - Validate cross-field requirements before the daemon starts
//   - Generate the commented starter file for `config init`
package config
