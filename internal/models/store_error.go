package models

import (
	"errors"
	"fmt"
	"regexp"
)

// StoreError is returned by every gateway call that the backend rejects or
// that never reaches it. Code is the PostgREST/Postgres error code when the
// backend supplied one and empty for transport failures.
type StoreError struct {
	Op      string
	Code    string
	Message string
}

func (e *StoreError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("store %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("store %s: (%s) %s", e.Op, e.Code, e.Message)
}

// postgrest-go formats backend errors as "(code) message".
var postgrestErr = regexp.MustCompile(`^\(([^)]*)\)\s*(.*)$`)

func newStoreError(op string, err error) *StoreError {
	var se *StoreError
	if errors.As(err, &se) {
		return se
	}
	msg := err.Error()
	if m := postgrestErr.FindStringSubmatch(msg); m != nil {
		return &StoreError{Op: op, Code: m[1], Message: m[2]}
	}
	return &StoreError{Op: op, Message: msg}
}

// IsStoreError reports whether err came from the event store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
