// Package tridentlog centralizes logrus setup for both binaries, so the
// daemon and client agree on level parsing and formatting.
package tridentlog

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Setup configures the process-wide logrus logger. level is one of
// trace/debug/info/warn/error (case-insensitive); unrecognized values
// fall back to info with a warning rather than failing startup.
func Setup(level string, forceColor bool) {
	parsed, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.WithField("level", level).Warn("Unrecognized log level, defaulting to info")
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)

	if forceColor {
		log.SetFormatter(&log.TextFormatter{
			ForceColors: true,
		})
	}
}
