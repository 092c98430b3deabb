// Package storage holds the sinks at the end of the pipeline. The
// InfluxDB writer consumes point payloads from the storage topic and
// writes them with seconds precision, duplicating primary-source points
// and splitting large batches. The optional file store appends raw
// collector messages to per-day JSON-lines files for debugging and
// offline analysis.
package storage
