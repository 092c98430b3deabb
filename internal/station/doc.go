// Package station maintains the registry of stations and devices the
// daemon collects for.
//
// The registry is seeded from the WeatherFlow stations endpoint and
// optionally adjusted by a JSONC overrides file, which can disable
// stations or devices and correct metadata such as elevation. Lookups by
// station ID, device ID, and serial number serve the processor on the
// hot path, so the registry keeps prebuilt indexes behind a read lock.
// When configured, a filesystem watcher reapplies the overrides file as
// soon as it changes on disk.
package station
