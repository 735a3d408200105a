// Package logging provides structured logging for the Refoss bridge.
//
// It wraps log/slog so every record carries the service name and build
// version, and so components can derive tagged child loggers.
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
//	devLogger := logger.Component("coordinator").With("device", mac)
//	devLogger.Info("push channel connected")
//
// Device passwords and broker credentials must never be logged.
package logging
