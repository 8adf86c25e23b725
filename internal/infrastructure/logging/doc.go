// Package logging provides structured logging using uber/zap.
//
// Two output modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// A rotating file sink (lumberjack) can be tee'd next to stdout by setting
// Config.File. The level is atomic so the "debug" option can be flipped
// while the daemon runs.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Moving tab", zap.String("tab_id", "12"))
//	logger.SetDebug(true)
package logging
