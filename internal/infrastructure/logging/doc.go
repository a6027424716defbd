// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Session created", zap.String("session_id", sid))
//	logger.Error("Spawn failed", zap.Error(err))
package logging
