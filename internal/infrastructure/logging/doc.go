// Package logging provides structured logging for Stocky Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the application.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("scan accepted", "device_id", deviceID)
//
// # Security
//
// Device identities are API keys. Never log them in full; use
// logging.RedactKey to log a stable prefix instead.
package logging
