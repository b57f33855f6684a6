// Package sderr maps the negative-errno return convention of libsystemd onto
// Go errors. Both pkg/id128 and pkg/sdjournal/lli re-export Error so callers
// never need to import this package.
package sderr

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Error is returned when a libsystemd call reports failure. Op names the C
// entry point, Errno is the positive errno value.
type Error struct {
	Op    string
	Errno unix.Errno
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Errno.Error()
}

// Unwrap exposes the errno so errors.Is(err, unix.ENOENT) and
// errors.Is(err, fs.ErrNotExist) work.
func (e *Error) Unwrap() error {
	return e.Errno
}

// Check converts a C return value into an error. Non-negative values are
// success.
func Check(op string, r int) error {
	if r >= 0 {
		return nil
	}
	return &Error{Op: op, Errno: unix.Errno(-r)}
}

// Errno extracts the errno carried by err, or 0 if err did not come from
// libsystemd.
func Errno(err error) unix.Errno {
	var e *Error
	if errors.As(err, &e) {
		return e.Errno
	}
	return 0
}
