// Package logging builds the logrus logger shared by motorctl components.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger at level. "off" and "none" discard everything;
// an unknown level falls back to info.
func New(level string) *logrus.Logger {
	logger := logrus.New()

	if level == "off" || level == "none" {
		logger.SetOutput(io.Discard)
	} else {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		logger.SetLevel(lvl)
		logger.SetOutput(os.Stderr)
	}

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return logger
}

// Verbose returns "debug" when verbose is set, level otherwise.
func Verbose(level string, verbose bool) string {
	if verbose {
		return "debug"
	}
	return level
}
