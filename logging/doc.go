// Package logging provides a minimal logging interface and adapters for funcn.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that calls, the tool loop and adapters use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StructuredLogger with call, tool and loop helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	c := call.New(static, func(o *call.Options) { o.Logger = logger })
package logging
