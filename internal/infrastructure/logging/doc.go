// Package logging provides structured logging for Velagate Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
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
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// Never log device management passwords, MQTT credentials, or tokens.
// Inbound payloads may be logged raw on parse failure for diagnosis;
// they contain no secrets by construction.
package logging
