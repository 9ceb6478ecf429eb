// Package logger provides the structured logging interface used across igengage.
//
// It wraps zerolog behind a small Logger interface with support for:
//   - leveled logging (Debug, Info, Warn, Error)
//   - structured fields via WithField/WithFields and the *WithFields methods
//   - colored console output on stderr, optionally mirrored to a file
//   - a global logger for components constructed without one
//
// Basic usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	logger.WithField("username", "alice").Info("profile scored")
//
// Tests use NewTestLogger, which records every message for assertions.
package logger
