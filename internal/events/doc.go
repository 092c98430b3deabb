// Package events provides the in-process publish/subscribe bus that
// connects collectors, handlers, and storage.
//
// Collectors publish raw payloads to TopicCollectorData; the processor
// republishes enriched messages to TopicProcessedData; handlers emit
// storage payloads to TopicStorageInfluxDB; everything reports counters
// on TopicSystemMetrics. Subscribers receive on buffered channels and a
// publisher never blocks: when a subscriber's buffer is full the message
// is dropped for that subscriber and counted.
package events
