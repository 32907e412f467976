package errors

import (
	goerrors "errors"
	"fmt"
	"syscall"
)

// DriverError is a wrapper around system errno codes, with a customizable error message.
type DriverError interface {
	error
	Errno() Errno
	Unwrap() error
}

// ErrnoCarrier is implemented by any error that can report an errno code. Both
// [DriverError] and the sentinel errors in the root package satisfy it.
type ErrnoCarrier interface {
	Errno() Errno
}

type driverError struct {
	errno         Errno
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e driverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return StrError(e.errno)
}

func (e driverError) Errno() Errno {
	return e.errno
}

func (e driverError) Unwrap() error {
	return e.originalError
}

// Is matches any target carrying the same errno code, so a DriverError satisfies
// [errors.Is] against the sentinel errors in the root package.
func (e driverError) Is(target error) bool {
	carrier, ok := target.(ErrnoCarrier)
	return ok && carrier.Errno() == e.errno
}

func NewFromError(errnoCode Errno, originalError error) DriverError {
	return driverError{
		errno:         errnoCode,
		message:       fmt.Sprintf("%s: %s", StrError(errnoCode), originalError.Error()),
		originalError: originalError,
	}
}

// FromHostError converts an error from the host's I/O calls into a
// [DriverError]. The errno code is kept if the host reported one, and is [EIO]
// otherwise.
func FromHostError(err error) DriverError {
	var code syscall.Errno
	if goerrors.As(err, &code) {
		return NewFromError(Errno(code), err)
	}
	return NewFromError(EIO, err)
}

// ErrnoOf returns the errno code of the first error in the chain that carries
// one. A nil error gives [EOK]; an error that carries no code at all is treated
// as a generic I/O failure.
func ErrnoOf(err error) Errno {
	if err == nil {
		return EOK
	}

	var carrier ErrnoCarrier
	if goerrors.As(err, &carrier) {
		return carrier.Errno()
	}
	return EIO
}

// ReturnCode converts an error into a kernel-style return value: 0 on success
// and the negated errno code otherwise.
func ReturnCode(err error) int {
	return -int(ErrnoOf(err))
}
