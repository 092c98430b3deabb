package station

import (
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// Device types reported by the WeatherFlow API.
const (
	DeviceTypeTempest = "ST"
	DeviceTypeAir     = "AR"
	DeviceTypeSky     = "SK"
	DeviceTypeHub     = "HB"
)

// Device is one physical unit attached to a station: a Tempest, a
// legacy Air or Sky, or the hub itself.
type Device struct {
	DeviceID     int    `json:"device_id"`
	SerialNumber string `json:"serial_number"`
	DeviceType   string `json:"device_type"`
	Name         string `json:"name"`

	// Enabled gates polling for this device. Stations report no such
	// flag; it defaults to true and is controlled by the overrides file.
	Enabled bool `json:"enabled"`
}

// IsHub reports whether the device is the station's hub. Hubs relay
// other devices' readings and are skipped when polling observations.
func (d *Device) IsHub() bool {
	return d.DeviceType == DeviceTypeHub
}

// Station is one weather station with its metadata and devices.
type Station struct {
	StationID int      `json:"station_id"`
	Name      string   `json:"station_name"`
	Latitude  float64  `json:"station_latitude"`
	Longitude float64  `json:"station_longitude"`
	Elevation float64  `json:"station_elevation"`
	TimeZone  string   `json:"station_time_zone"`
	Enabled   bool     `json:"enabled"`
	Devices   []Device `json:"devices"`
}

// Info flattens the station metadata into the form attached to messages
// and used for tagging.
func (s *Station) Info() *model.StationInfo {
	return &model.StationInfo{
		StationID: s.StationID,
		Name:      s.Name,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Elevation: s.Elevation,
		TimeZone:  s.TimeZone,
	}
}

// PollableDevices returns the devices worth polling for observations:
// enabled, not a hub. The station itself must also be enabled or the
// result is empty.
func (s *Station) PollableDevices() []Device {
	if !s.Enabled {
		return nil
	}

	var out []Device
	for _, d := range s.Devices {
		if d.Enabled && !d.IsHub() {
			out = append(out, d)
		}
	}
	return out
}
