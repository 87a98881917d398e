// Package sqlite persists validation sessions: the event streams read by the
// orchestrator and the reports it produces.
package sqlite

import (
	"strings"
	"time"
)

const (
	busyMaxAttempts = 5
	busyBaseBackoff = 10 * time.Millisecond
)

// retryOnBusy retries fn when sqlite reports the database as busy or locked.
// Non-busy errors fail immediately. Backoff doubles per attempt.
func retryOnBusy(fn func() error) error {
	var err error
	backoff := busyBaseBackoff
	for attempt := 0; attempt < busyMaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		if attempt < busyMaxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return err
}

// isBusy reports whether err is a transient sqlite contention error.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
