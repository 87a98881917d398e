// Package monitoring provides the process-wide log seam. Components log
// through Logf with a bracketed tag (for example "[Orchestrator] ...") so
// tests can mute or capture output without touching the stdlib logger.
package monitoring

import "log"

// Logf is the package diagnostic logger, defaulting to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil f installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
