// Package ui provides terminal output components for the senville CLI.
//
// Components follow a "print once and exit" pattern built on Lipgloss:
//
//   - Header: command banner with the operation name and parameters
//   - StatusView: the state of one unit in a bordered box
//   - Result: success, warning and failure boxes; failures carry
//     troubleshooting tips chosen by the error kind
//   - RenderDevices: a table of units
//
// Discovery is the one long-running operation, so RunDiscovery draws a
// Bubble Tea spinner while the scan runs and lists units as they answer.
// When stderr is not a terminal it falls back to draining the scan quietly.
//
// Example:
//
//	p := ui.NewPrinter(os.Stdout)
//	p.PrintStatus(ui.StatusView{Name: "bedroom", Identity: id, State: state, Unit: device.Fahrenheit})
//
// Logging is controlled by SENVILLE_LOG_LEVEL or --log-level. When unset,
// zap is silent and only the curated output is shown.
package ui
