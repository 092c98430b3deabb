package station

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/tidwall/jsonc"

	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// Overrides adjusts fetched station metadata. The file is JSONC, so
// operators can annotate why a station is disabled or an elevation was
// corrected. Station entries are keyed by station ID, device entries by
// serial number. Only set fields are applied.
type Overrides struct {
	Stations map[string]StationOverride `json:"stations"`
	Devices  map[string]DeviceOverride  `json:"devices"`
}

// StationOverride replaces selected fields of one station.
type StationOverride struct {
	Enabled   *bool    `json:"enabled,omitempty"`
	Name      *string  `json:"name,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Elevation *float64 `json:"elevation,omitempty"`
	TimeZone  *string  `json:"time_zone,omitempty"`
}

// DeviceOverride replaces selected fields of one device.
type DeviceOverride struct {
	Enabled *bool   `json:"enabled,omitempty"`
	Name    *string `json:"name,omitempty"`
}

// LoadOverrides reads and parses a JSONC overrides file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("station overrides file not found: %s", path),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}

	// Strip // and /* */ comments plus trailing commas before handing the
	// bytes to encoding/json.
	cleanJSON := jsonc.ToJSON(data)

	var ov Overrides
	if err := json.Unmarshal(cleanJSON, &ov); err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("failed to parse overrides file %s", path),
			err,
		)
	}

	for key := range ov.Stations {
		if _, err := strconv.Atoi(key); err != nil {
			return nil, model.NewCLIError(
				model.ExitConfigError,
				fmt.Sprintf("overrides file %s: station key %q is not a station ID", path, key),
			)
		}
	}

	return &ov, nil
}

// ApplyOverrides rebuilds the active station set from the last fetched
// base list plus the overrides file. With no overrides path configured it
// just resets the indexes to the fetched state.
func (r *Registry) ApplyOverrides() error {
	var ov *Overrides
	if r.overridesPath != "" {
		loaded, err := LoadOverrides(r.overridesPath)
		if err != nil {
			return err
		}
		ov = loaded
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active := make([]Station, len(r.base))
	copy(active, r.base)
	for i := range active {
		active[i].Devices = append([]Device(nil), r.base[i].Devices...)
	}

	if ov != nil {
		applyOverrides(active, ov)
	}

	r.rebuild(active)
	return nil
}

func applyOverrides(stations []Station, ov *Overrides) {
	for i := range stations {
		st := &stations[i]

		if so, ok := ov.Stations[strconv.Itoa(st.StationID)]; ok {
			if so.Enabled != nil {
				st.Enabled = *so.Enabled
			}
			if so.Name != nil {
				st.Name = *so.Name
			}
			if so.Latitude != nil {
				st.Latitude = *so.Latitude
			}
			if so.Longitude != nil {
				st.Longitude = *so.Longitude
			}
			if so.Elevation != nil {
				st.Elevation = *so.Elevation
			}
			if so.TimeZone != nil {
				st.TimeZone = *so.TimeZone
			}
		}

		for j := range st.Devices {
			dev := &st.Devices[j]
			do, ok := ov.Devices[dev.SerialNumber]
			if !ok {
				continue
			}
			if do.Enabled != nil {
				dev.Enabled = *do.Enabled
			}
			if do.Name != nil {
				dev.Name = *do.Name
			}
		}
	}
}
