// Package logging provides structured logging for the doorbell bridge.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same format, level filtering and default fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
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
//	logger := logging.New(cfg.Logging, cfg.Service.Name, "1.0.0")
//	logger.Info("subscribed", "topic", "home/front/doorbell")
//
// Never log broker, InfluxDB or Redis credentials.
package logging
