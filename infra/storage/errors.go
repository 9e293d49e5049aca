package storage

import (
	"errors"
	"strings"
)

var (
	ErrOrderNotFound = errors.New("storage: order not found")

	// ErrTransitionRefused is returned by UpdateOrderStatus when no row
	// accepts the update: the id is unknown, the row is already in another
	// terminal state, or the status would move backwards.
	ErrTransitionRefused = errors.New("storage: order status transition refused")
)

// IsBusy reports whether err is SQLite lock contention, the only storage
// error that is worth running a transaction again for.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
