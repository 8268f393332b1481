package utils

import (
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

var logger logr.Logger = logr.Discard()

// InitLog builds the process-wide logger. Higher verbosity means more logs,
// matching logr V-levels (0 info, 1 debug, 2 trace).
func InitLog(verbosity int) logr.Logger {
	zerologr.SetMaxV(verbosity)
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Caller().Logger()
	logger = zerologr.New(&zl)
	return logger
}

func Log() logr.Logger {
	return logger
}
