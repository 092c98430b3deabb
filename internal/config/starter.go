package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// starterHeader is prepended to the generated starter file. It documents
// the resolution order so operators know the file is optional.
const starterHeader = `# weatherflow-collector configuration
#
# Every key below can also be set through the environment: prefix the key
# with WEATHERFLOW_COLLECTOR_ and replace dots with underscores, e.g.
#   api.token        -> WEATHERFLOW_COLLECTOR_API_TOKEN
#   influxdb.bucket  -> WEATHERFLOW_COLLECTOR_INFLUXDB_BUCKET
# Environment variables take precedence over this file.
#
# The values below are the built-in defaults.
`

// WriteStarter generates a commented YAML file populated with the default
// value of every knob. It refuses to overwrite an existing file so a
// stray `config init` cannot destroy a tuned configuration.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return model.NewCLIError(
			model.ExitConfigError,
			fmt.Sprintf("refusing to overwrite existing config file %s", path),
		)
	}

	// A defaults-only viper yields the same nested map the loader resolves,
	// so the starter file always matches the real key tree.
	v := viper.New()
	setDefaults(v)

	yamlBytes, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "failed to serialize starter configuration", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return model.WrapCLIError(model.ExitConfigError, fmt.Sprintf("failed to create directory %s", dir), err)
		}
	}

	if err := os.WriteFile(path, append([]byte(starterHeader), yamlBytes...), 0o644); err != nil {
		return model.WrapCLIError(model.ExitConfigError, fmt.Sprintf("failed to write %s", path), err)
	}

	return nil
}

// redactedPlaceholder replaces secret values in `config show` output.
const redactedPlaceholder = "[redacted]"

// Redacted returns a copy of the configuration with secrets masked,
// suitable for printing. Empty secrets stay empty so an operator can tell
// "unset" apart from "set but hidden".
func (c *Config) Redacted() Config {
	out := *c
	if out.API.Token != "" {
		out.API.Token = redactedPlaceholder
	}
	if out.InfluxDB.Token != "" {
		out.InfluxDB.Token = redactedPlaceholder
	}
	return out
}

// Settings flattens the configuration into the nested key map the YAML
// file and environment variables use, so `config show` output can be
// pasted straight back into a config file. Durations render as strings
// ("30s", "5m0s") rather than nanosecond integers.
func (c Config) Settings() (map[string]any, error) {
	var out map[string]any
	if err := mapstructure.Decode(c, &out); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "failed to flatten configuration", err)
	}
	stringifyDurations(out)
	return out, nil
}

func stringifyDurations(settings map[string]any) {
	for key, value := range settings {
		switch v := value.(type) {
		case map[string]any:
			stringifyDurations(v)
		case time.Duration:
			settings[key] = v.String()
		}
	}
}
