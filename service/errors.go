package service

import "errors"

// RetriableError is an error the caller may resubmit after.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable reports whether err, or anything it wraps, is retriable.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// PersistenceError is a storage failure during a submit or cancel. When it
// is returned nothing changed, in memory or on disk.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persist " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) IsRetriable() bool { return true }

func (e *PersistenceError) Unwrap() error { return e.Err }
