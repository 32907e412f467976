package easyfs

import (
	"fmt"

	"github.com/dargueta/easyfs/errors"
	"github.com/hashicorp/go-multierror"
)

// DriverError is the error type returned by every layer of the filesystem. It
// always carries an errno code so that a syscall layer can turn it into a
// return value without string matching.
type DriverError interface {
	error
	Errno() errors.Errno
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type baseEasyfsError errors.Errno

var ErrExists = baseEasyfsError(errors.EEXIST)
var ErrFileSystemCorrupted = baseEasyfsError(errors.EUCLEAN)
var ErrFileTooLarge = baseEasyfsError(errors.EFBIG)
var ErrInvalidArgument = baseEasyfsError(errors.EINVAL)
var ErrInvalidFileDescriptor = baseEasyfsError(errors.EBADF)
var ErrInvalidFileSystem = baseEasyfsError(errors.EMEDIUMTYPE)
var ErrIOFailed = baseEasyfsError(errors.EIO)
var ErrIsADirectory = baseEasyfsError(errors.EISDIR)
var ErrNameTooLong = baseEasyfsError(errors.ENAMETOOLONG)
var ErrNoBufferSpace = baseEasyfsError(errors.ENOBUFS)
var ErrNoSpaceOnDevice = baseEasyfsError(errors.ENOSPC)
var ErrNotFound = baseEasyfsError(errors.ENOENT)
var ErrNotPermitted = baseEasyfsError(errors.EPERM)
var ErrPermissionDenied = baseEasyfsError(errors.EACCES)
var ErrTooManyLinks = baseEasyfsError(errors.EMLINK)
var ErrTooManyOpenFiles = baseEasyfsError(errors.EMFILE)

func (e baseEasyfsError) Error() string {
	return errors.StrError(errors.Errno(e))
}

func (e baseEasyfsError) Errno() errors.Errno {
	return errors.Errno(e)
}

func (e baseEasyfsError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), message),
		errno:         errors.Errno(e),
		originalError: e,
	}
}

func (e baseEasyfsError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		errno:         errors.Errno(e),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customDriverError struct {
	message       string
	errno         errors.Errno
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) Errno() errors.Errno {
	return e.errno
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		errno:         e.errno,
		originalError: e,
	}
}

func (e customDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		errno:         e.errno,
		originalError: multierror.Append(e, err),
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}
