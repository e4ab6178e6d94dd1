// Package logging provides structured logging with per-module log level
// configuration.
//
// The system is built on Go's slog package with automatic output routing:
// logs go to the systemd journal when journald is available, to stdout when
// a terminal, pipe, or file is connected, and to an in-memory history buffer
// that backs the dashboard's live log stream.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"session": "debug",
//			"engine":  "warn",
//		},
//	})
//
// Then obtain module loggers anywhere:
//
//	logger := logging.GetLogger("session")
//	logger.Info("slot started", "slot", 3)
//
// Module-specific levels override the global level for that module only and
// can be changed at runtime through the level vars held by this package.
//
// When running under systemd:
//
//	journalctl -t camgrid -f
//	journalctl -t camgrid MODULE=session
package logging
