package grbl

import "errors"

var (
	// ErrInvalidAxis is returned when an axis is not one of X, Y, Z (or 1, 2, 3).
	ErrInvalidAxis = errors.New("invalid axis")

	// ErrMalformedStatus is returned for a status report that cannot be decoded.
	// Grbl occasionally interleaves lines, so callers should resample.
	ErrMalformedStatus = errors.New("malformed status")

	// ErrStatusUnavailable is returned once the status retry limit is exhausted.
	ErrStatusUnavailable = errors.New("status unavailable")

	// ErrNotConnected is returned for operations on a session that is not open.
	ErrNotConnected = errors.New("not connected")

	// ErrTransport wraps I/O failures on the serial channel. The session is
	// unusable afterwards.
	ErrTransport = errors.New("transport error")
)
