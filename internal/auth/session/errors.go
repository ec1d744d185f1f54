package session

import "errors"

var (
	// ErrSessionExpired is returned when a request cannot be authenticated
	// and refresh failed; the caller should send the user back to login.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoRefreshToken is returned when a refresh is needed but no
	// refresh token is held.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrInvalidToken is returned when a token cannot be decoded.
	ErrInvalidToken = errors.New("invalid token")
)
