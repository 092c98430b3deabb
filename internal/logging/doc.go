// Package logging configures the process-wide structured logger.
//
// Every module logs through a *logrus.Logger built by New. Console output
// uses a colored text formatter so interleaved collector, handler, and
// storage lines stay readable; JSON output is available for log shippers.
// Module names travel in a "module" field so a single stream can be
// filtered per subsystem.
package logging
