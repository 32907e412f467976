package easyfs_test

import (
	"errors"
	"testing"

	"github.com/dargueta/easyfs"
	efserrors "github.com/dargueta/easyfs/errors"
	"github.com/stretchr/testify/assert"
)

func TestEasyfsErrorWithMessage(t *testing.T) {
	newErr := easyfs.ErrNameTooLong.WithMessage("asdfqwerty")
	assert.Equal(
		t, "File name too long: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, easyfs.ErrNameTooLong)
	assert.Equal(t, efserrors.ENAMETOOLONG, newErr.Errno())
}

func TestEasyfsErrorWithMessage__Chained(t *testing.T) {
	newErr := easyfs.ErrNotFound.WithMessage("a.txt").WithMessage("unlink")
	assert.Equal(t, "No such file or directory: a.txt: unlink", newErr.Error())
	assert.ErrorIs(t, newErr, easyfs.ErrNotFound)
	assert.NotErrorIs(t, newErr, easyfs.ErrExists)
}

func TestEasyfsErrorWrap(t *testing.T) {
	originalErr := errors.New("original error")
	newErr := easyfs.ErrExists.Wrap(originalErr)
	expectedMessage := "File exists: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, easyfs.ErrExists, "easyfs error not set as parent")
	assert.Equal(t, efserrors.EEXIST, efserrors.ErrnoOf(newErr))
}

func TestEasyfsError__ReturnCode(t *testing.T) {
	err := easyfs.ErrNoSpaceOnDevice.WithMessage("data bitmap exhausted")
	assert.Equal(t, -int(efserrors.ENOSPC), efserrors.ReturnCode(err))
}
