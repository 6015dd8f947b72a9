package main

import (
	"os"
	"time"

	"github.com/op/go-logging"
)

// banSweepInterval is how often the shared ban list's background sweep
// (banlist.List.StartSweeper) trims expired entries.
const banSweepInterval = time.Minute

var logFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`,
)

// setupLogging installs a leveled backend over stderr, mapping spec
// section 6.1's log_level (0..5) directly onto go-logging's own
// CRITICAL..DEBUG ordering (both run 0 through 5), the way
// krd/main.go in the kryptco-kr retrieval wires logging.SetupLogging.
func setupLogging(level int) {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, logFormat)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(clampLevel(level), "")
	logging.SetBackend(leveled)
}

func clampLevel(level int) logging.Level {
	switch {
	case level <= int(logging.CRITICAL):
		return logging.CRITICAL
	case level >= int(logging.DEBUG):
		return logging.DEBUG
	default:
		return logging.Level(level)
	}
}
