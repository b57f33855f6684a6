package sderr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCheckSuccess(t *testing.T) {
	assert.NoError(t, Check("sd_journal_next", 0))
	assert.NoError(t, Check("sd_journal_next", 1))
	assert.NoError(t, Check("sd_journal_next_skip", 42))
}

func TestCheckNegativeErrno(t *testing.T) {
	err := Check("sd_journal_get_data", -int(unix.ENOENT))
	require.Error(t, err)

	var sdErr *Error
	require.True(t, errors.As(err, &sdErr))
	assert.Equal(t, "sd_journal_get_data", sdErr.Op)
	assert.Equal(t, unix.ENOENT, sdErr.Errno)

	assert.ErrorIs(t, err, unix.ENOENT)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "sd_journal_get_data")
}

func TestErrnoThroughWrapping(t *testing.T) {
	err := fmt.Errorf("reading field: %w", Check("sd_journal_get_data", -int(unix.EADDRNOTAVAIL)))
	assert.Equal(t, unix.EADDRNOTAVAIL, Errno(err))
	assert.Equal(t, unix.Errno(0), Errno(errors.New("plain")))
}
