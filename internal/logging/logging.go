package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// ModuleField is the log field carrying the subsystem name, for example
// "collector_udp" or "storage_influxdb".
const ModuleField = "module"

// Options controls logger construction.
type Options struct {
	// Level is a logrus level name such as "debug", "info", or "warning".
	// Unparseable values fall back to info.
	Level string

	// JSON switches from the colored console formatter to line-delimited
	// JSON, suitable for log shippers.
	JSON bool

	// Output overrides the destination stream. Defaults to os.Stdout.
	Output io.Writer
}

// New builds the process-wide logger. The returned logger is safe for
// concurrent use by every module.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()

	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:     true,
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// ForModule returns an entry tagged with the subsystem name so a shared
// logger can be handed to each module without losing attribution.
func ForModule(logger *logrus.Logger, module string) *logrus.Entry {
	return logger.WithField(ModuleField, module)
}
