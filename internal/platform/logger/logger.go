// Package logger provides a configured zerolog logger.
package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a new zerolog.Logger configured for the application.
func New(serviceName string) zerolog.Logger {
	return zerolog.New(os.Stdout).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// InstallGlobal makes l the process-wide logger used by the zerolog/log
// package helpers. Call once at boot.
func InstallGlobal(l zerolog.Logger) {
	log.Logger = l
}
