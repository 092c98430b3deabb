// Package server exposes the running collector over HTTP and WebSocket:
// the health endpoint probed by the container health check, REST lookups
// for stations and latest conditions, and a WebSocket feed that
// broadcasts every processed message to connected clients.
package server
