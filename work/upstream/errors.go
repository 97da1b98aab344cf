package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyRedirects means the redirect hop bound was exceeded before
	// a terminal response arrived.
	ErrTooManyRedirects = errors.New("upstream: too many redirects")

	// ErrTimeout means the upstream did not connect or answer in time.
	ErrTimeout = errors.New("upstream: timeout")

	// ErrUnreachable means the connection itself failed.
	ErrUnreachable = errors.New("upstream: unreachable")
)

// RejectedError is returned when the upstream answered with a non-success,
// non-redirect status.
type RejectedError struct {
	Status int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upstream: rejected with HTTP %d", e.Status)
}

// IsRejected reports whether err is a RejectedError and returns the status.
func IsRejected(err error) (int, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Status, true
	}
	return 0, false
}
