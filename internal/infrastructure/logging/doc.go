// Package logging provides structured logging for the ILP relay.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same format, level and default fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("relay started", "table", cfg.Relay.Table)
//	sender.SetLogger(logger.With("component", "ilp"))
//
// # Security
//
// Never log MQTT passwords or raw payloads that may carry credentials.
package logging
