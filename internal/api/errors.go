package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound is returned when a username lookup or direct
	// message targets an unknown user. An application error: surfaced,
	// never retried.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotAuthenticated is returned when an operation needs an access
	// token and none is held.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidCredentials is returned when login is rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// StatusError carries a non-2xx response the client could not map to a
// more specific sentinel.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}
