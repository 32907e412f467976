package errors_test

import (
	goerrors "errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/errors"
	"github.com/stretchr/testify/assert"
)

func TestNewFromError__Unwraps(t *testing.T) {
	original := goerrors.New("short write")
	err := errors.NewFromError(errors.EIO, original)

	assert.Equal(t, "Input/output error: short write", err.Error())
	assert.Equal(t, errors.EIO, err.Errno())
	assert.ErrorIs(t, err, original)
}

func TestNewFromError__MatchesSentinelByCode(t *testing.T) {
	err := errors.NewFromError(errors.ENOSPC, goerrors.New("disk full"))
	assert.ErrorIs(t, err, easyfs.ErrNoSpaceOnDevice)
	assert.NotErrorIs(t, err, easyfs.ErrIOFailed)

	wrapped := fmt.Errorf("writing block 7: %w", err)
	assert.ErrorIs(t, wrapped, easyfs.ErrNoSpaceOnDevice)
}

func TestFromHostError(t *testing.T) {
	hostErr := fmt.Errorf("write image.bin: %w", syscall.ENOSPC)
	err := errors.FromHostError(hostErr)
	assert.Equal(t, errors.ENOSPC, err.Errno())
	assert.ErrorIs(t, err, syscall.ENOSPC)

	err = errors.FromHostError(goerrors.New("cable unplugged"))
	assert.Equal(t, errors.EIO, err.Errno())
	assert.Equal(t, "Input/output error: cable unplugged", err.Error())
}

func TestErrnoOf(t *testing.T) {
	assert.Equal(t, errors.EOK, errors.ErrnoOf(nil))
	assert.Equal(t, errors.EIO, errors.ErrnoOf(goerrors.New("no code")))
	assert.Equal(t, errors.EEXIST, errors.ErrnoOf(easyfs.ErrExists))

	wrapped := fmt.Errorf("creating a.txt: %w", easyfs.ErrNotFound.WithMessage("a.txt"))
	assert.Equal(t, errors.ENOENT, errors.ErrnoOf(wrapped))

	var driverErr errors.DriverError
	fromHost := fmt.Errorf("reading block 3: %w", errors.FromHostError(syscall.EROFS))
	assert.True(t, goerrors.As(fromHost, &driverErr))
	assert.Equal(t, errors.EROFS, errors.ErrnoOf(fromHost))
}

func TestReturnCode(t *testing.T) {
	assert.Equal(t, 0, errors.ReturnCode(nil))
	assert.Equal(t, -2, errors.ReturnCode(easyfs.ErrNotFound))
	assert.Equal(t, -28, errors.ReturnCode(easyfs.ErrNoSpaceOnDevice))
}

func TestStrError__Unknown(t *testing.T) {
	assert.Equal(t, "error 9999 not recognized.", errors.StrError(9999))
}
