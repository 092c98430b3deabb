package station

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// Fetcher is the slice of the API client the registry needs. It is
// satisfied by *wfapi.Client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, collectorType string) (map[string]any, error)
	StationsURL() string
}

// registryCollectorType labels the registry's own API traffic in the
// transfer metrics.
const registryCollectorType = "station_registry"

// Registry holds the active station set with prebuilt lookup indexes.
// All methods are safe for concurrent use.
type Registry struct {
	fetcher       Fetcher
	overridesPath string
	logger        *logrus.Entry

	mu       sync.RWMutex
	base     []Station // as fetched, before overrides
	stations map[int]*Station
	byDevice map[int]*Station
	bySerial map[string]*Station
}

// NewRegistry creates an empty registry. Call Refresh before serving
// lookups. overridesPath may be empty to disable overrides.
func NewRegistry(fetcher Fetcher, overridesPath string, logger *logrus.Entry) *Registry {
	return &Registry{
		fetcher:       fetcher,
		overridesPath: overridesPath,
		logger:        logger,
		stations:      make(map[int]*Station),
		byDevice:      make(map[int]*Station),
		bySerial:      make(map[string]*Station),
	}
}

// stationsDocument mirrors the relevant slice of the stations endpoint
// response. Unknown fields are ignored.
type stationsDocument struct {
	Stations []struct {
		StationID   int     `json:"station_id"`
		Name        string  `json:"name"`
		PublicName  string  `json:"public_name"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		Timezone    string  `json:"timezone"`
		StationMeta struct {
			Elevation float64 `json:"elevation"`
		} `json:"station_meta"`
		Devices []struct {
			DeviceID     int    `json:"device_id"`
			SerialNumber string `json:"serial_number"`
			DeviceType   string `json:"device_type"`
			DeviceMeta   struct {
				Name string `json:"name"`
			} `json:"device_meta"`
		} `json:"devices"`
	} `json:"stations"`
}

// Refresh fetches the station list from the API, applies the overrides
// file, and swaps in the rebuilt indexes. On error the previous state is
// kept so a transient API failure does not blank the registry.
func (r *Registry) Refresh(ctx context.Context) error {
	raw, err := r.fetcher.Fetch(ctx, r.fetcher.StationsURL(), registryCollectorType)
	if err != nil {
		return fmt.Errorf("failed to fetch stations: %w", err)
	}

	var doc stationsDocument
	if err := decodeDocument(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode stations response: %w", err)
	}

	base := make([]Station, 0, len(doc.Stations))
	for _, rec := range doc.Stations {
		st := Station{
			StationID: rec.StationID,
			Name:      rec.Name,
			Latitude:  rec.Latitude,
			Longitude: rec.Longitude,
			Elevation: rec.StationMeta.Elevation,
			TimeZone:  rec.Timezone,
			Enabled:   true,
		}
		if st.Name == "" {
			st.Name = rec.PublicName
		}
		for _, dev := range rec.Devices {
			st.Devices = append(st.Devices, Device{
				DeviceID:     dev.DeviceID,
				SerialNumber: dev.SerialNumber,
				DeviceType:   dev.DeviceType,
				Name:         dev.DeviceMeta.Name,
				Enabled:      true,
			})
		}
		base = append(base, st)
	}

	r.mu.Lock()
	r.base = base
	r.mu.Unlock()

	if err := r.ApplyOverrides(); err != nil {
		return err
	}

	r.logger.WithField("stations", len(base)).Info("station registry refreshed")
	return nil
}

// rebuild derives the lookup indexes from an override-adjusted station
// list. Caller must hold the write lock.
func (r *Registry) rebuild(active []Station) {
	stations := make(map[int]*Station, len(active))
	byDevice := make(map[int]*Station)
	bySerial := make(map[string]*Station)

	for i := range active {
		st := &active[i]
		stations[st.StationID] = st
		for _, dev := range st.Devices {
			byDevice[dev.DeviceID] = st
			if dev.SerialNumber != "" {
				bySerial[dev.SerialNumber] = st
			}
		}
	}

	r.stations = stations
	r.byDevice = byDevice
	r.bySerial = bySerial
}

// Snapshot returns the active stations sorted by ID. The returned values
// are copies; mutating them does not touch the registry.
func (r *Registry) Snapshot() []Station {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Station, 0, len(r.stations))
	for _, st := range r.stations {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}

// EnabledStations returns the active stations that are enabled, sorted
// by ID.
func (r *Registry) EnabledStations() []Station {
	all := r.Snapshot()
	out := all[:0]
	for _, st := range all {
		if st.Enabled {
			out = append(out, st)
		}
	}
	return out
}

// ByStationID looks a station up by its ID.
func (r *Registry) ByStationID(id int) (*Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stations[id]
	return st, ok
}

// ByDeviceID looks a station up by one of its device IDs.
func (r *Registry) ByDeviceID(id int) (*Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.byDevice[id]
	return st, ok
}

// BySerialNumber looks a station up by a device or hub serial number.
func (r *Registry) BySerialNumber(serial string) (*Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.bySerial[serial]
	return st, ok
}

// DeviceEnabled reports whether the device with the given serial should
// be collected: its station is enabled and the device itself is enabled.
// Unknown serials report true, so a station added upstream keeps flowing
// until the next registry refresh names it.
func (r *Registry) DeviceEnabled(serial string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.bySerial[serial]
	if !ok {
		return true
	}
	if !st.Enabled {
		return false
	}
	for i := range st.Devices {
		if st.Devices[i].SerialNumber == serial {
			return st.Devices[i].Enabled
		}
	}
	return true
}

// InfoFor resolves station info for message metadata, trying station ID,
// then device ID, then serial number. Returns nil when nothing matches.
func (r *Registry) InfoFor(meta model.Metadata) *model.StationInfo {
	if meta.StationID != 0 {
		if st, ok := r.ByStationID(meta.StationID); ok {
			return st.Info()
		}
	}
	if meta.DeviceID != 0 {
		if st, ok := r.ByDeviceID(meta.DeviceID); ok {
			return st.Info()
		}
	}
	if meta.SerialNumber != "" {
		if st, ok := r.BySerialNumber(meta.SerialNumber); ok {
			return st.Info()
		}
	}
	return nil
}

// decodeDocument round-trips a generic JSON map into a typed struct.
func decodeDocument(raw map[string]any, v any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
