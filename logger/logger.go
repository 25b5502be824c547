package logger

import (
	"github.com/gruntwork-io/go-commons/logging"
	"github.com/sirupsen/logrus"
)

// GetProjectLogger returns the logger used across the project.
func GetProjectLogger() *logrus.Logger {
	return logging.GetLogger("voltlight")
}

// SetLevel adjusts the verbosity of all loggers returned by GetProjectLogger
// from here on. Unknown level strings leave the default (info) in place.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	logging.SetGlobalLogLevel(parsed)
}
