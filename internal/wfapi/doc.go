// Package wfapi is the WeatherFlow cloud API client shared by the REST
// and websocket collectors.
//
// The client wraps plain GETs with bounded retries and publishes transfer
// counters (requests, errors, duration, bytes) to the system metrics
// topic after every attempt cycle. URL builders produce the documented
// endpoint shapes; the token parameter name varies by endpoint (api_key
// for observations and stats, token for stations and forecasts) and the
// builders encode that.
package wfapi
