// Package logging provides structured logging for the senville tools.
//
// This package wraps a global zap logger. It is silent unless a level is
// passed to Initialize or SENVILLE_LOG_LEVEL is set, so library code can log
// freely without polluting command output.
//
// # Log Levels
//
//   - Debug: frame hex dumps, skipped notifications, handshake details
//   - Info: session open/close, discovery results
//   - Warn: retries, unexpected but recoverable replies
//   - Error: failures surfaced to the user
//
// # Frame Tracing
//
// Every frame written to or read from a unit can be traced:
//
//	logging.LogFrame(sessionID, "send", "8370", frame)
//	logging.LogRawBytes("discovery reply", data)
//
// Output goes to stderr in console format.
package logging
