package realtime

import "errors"

var (
	// ErrConnClosed is returned when an operation runs against a Conn
	// that has been explicitly torn down.
	ErrConnClosed = errors.New("connection closed")

	// ErrNoURL is returned when a Conn is constructed without an
	// endpoint URL (e.g. no access token yet).
	ErrNoURL = errors.New("missing endpoint url")
)
